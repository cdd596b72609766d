package dispatcher

import (
	"code.cloudfoundry.org/clock"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/config_loader"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/metrics"
)

// Invocation is one task run
type Invocation struct {
	// Task is the resource name, or "<resource>_info" for reads
	Task string
	// Params is the raw task mapping, ambient fields included
	Params map[string]interface{}
	// State, CheckMode and Diff override the mapping's runtime fields when set
	State     string
	CheckMode bool
	Diff      bool
}

// Envelope is the uniform task result
type Envelope struct {
	Changed  bool        `json:"changed" yaml:"changed"`
	Failed   bool        `json:"failed" yaml:"failed"`
	Msg      string      `json:"msg" yaml:"msg"`
	Response interface{} `json:"response,omitempty" yaml:"response,omitempty"`
	Diff     *Diff       `json:"diff,omitempty" yaml:"diff,omitempty"`
	Failure  *Failure    `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// Diff holds the masked before and after snapshots of the resource
type Diff struct {
	Before map[string]interface{} `json:"before" yaml:"before"`
	After  map[string]interface{} `json:"after" yaml:"after"`
}

// Failure describes a terminal failure
type Failure struct {
	Kind           apperrors.FailureKind `json:"kind" yaml:"kind"`
	Message        string                `json:"message" yaml:"message"`
	ControllerCode string                `json:"controller_code,omitempty" yaml:"controller_code,omitempty"`
}

// Config holds the dependencies of a dispatcher
type Config struct {
	// Catalog resolves task names to descriptors
	Catalog *descriptor.Catalog
	// Connection is the controller connection; required unless Client is set
	Connection *config_loader.ConnectionConfig
	// Client, when set, is used instead of a client built from Connection
	Client dnac_client.Client
	// Logger is the logger instance
	Logger logger.Logger
	// Metrics is optional
	Metrics *metrics.Recorder
	// Clock is used for retry and poll sleeps; the real clock when nil
	Clock clock.Clock
}

// Dispatcher binds task invocations to the read path or a reconciler. It
// keeps no state between invocations.
type Dispatcher struct {
	config *Config
	log    logger.Logger
}
