package errors

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"syscall"

	utilnet "k8s.io/apimachinery/pkg/util/net"
)

// IsNetworkError reports whether err happened before the controller produced
// any HTTP response: DNS resolution, TCP connect/reset, TLS handshake and
// transport timeouts. These map to the transport failure kind.
//
// Detected errors include:
//   - Connection refused (ECONNREFUSED) and reset (ECONNRESET)
//   - Connection timed out (ETIMEDOUT) and net.Error timeouts
//   - Network unreachable (ENETUNREACH), no route to host (EHOSTUNREACH)
//   - Connection aborted (ECONNABORTED), broken pipe (EPIPE)
//   - EOF and connection closure errors
//   - DNS lookup failures (*net.DNSError)
//   - TLS handshake and certificate verification failures
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if utilnet.IsConnectionRefused(err) ||
		utilnet.IsConnectionReset(err) ||
		utilnet.IsTimeout(err) ||
		utilnet.IsProbableEOF(err) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH,
			syscall.ECONNABORTED, syscall.EPIPE:
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if IsTLSError(err) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return IsNetworkError(opErr.Err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return IsNetworkError(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsTLSError reports whether err is a TLS handshake or certificate error.
func IsTLSError(err error) bool {
	if err == nil {
		return false
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	return errors.As(err, &verifyErr)
}
