// Package certs manages the self-signed certificate the server uses for wss://
// when no operator-supplied certificate is configured.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Certificate file names inside the certificate directory.
const (
	CertFile = "server.crt"
	KeyFile  = "server.key"
)

// DefaultValidity is the lifetime of a generated certificate.
const DefaultValidity = 365 * 24 * time.Hour

// Options controls where a certificate lives and what it covers.
type Options struct {
	// Dir holds server.crt and server.key. Defaults to ~/.collab/certs.
	Dir string

	// Hosts become the certificate's SANs. Defaults to localhost and 127.0.0.1.
	Hosts []string

	// Validity defaults to DefaultValidity.
	Validity time.Duration
}

// Info describes a certificate on disk.
type Info struct {
	CertPath    string
	KeyPath     string
	Fingerprint string // SHA-256, colon-separated uppercase hex
	NotAfter    time.Time
	Generated   bool
}

// DefaultDir returns ~/.collab/certs.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".collab", "certs"), nil
}

// Ensure loads the certificate in opts.Dir, generating a new one when either
// file is missing or the existing certificate has expired.
func Ensure(opts Options) (*Info, error) {
	if opts.Dir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		opts.Dir = dir
	}
	certPath := filepath.Join(opts.Dir, CertFile)
	keyPath := filepath.Join(opts.Dir, KeyFile)

	if isFile(certPath) && isFile(keyPath) {
		info, err := Load(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		if time.Now().Before(info.NotAfter) {
			return info, nil
		}
		log.Printf("certs: certificate at %s expired %s, regenerating", certPath, info.NotAfter.Format(time.RFC3339))
	}

	return generate(opts, certPath, keyPath)
}

// Load reads a certificate/key pair and describes it.
func Load(certPath, keyPath string) (*Info, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return &Info{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(leaf),
		NotAfter:    leaf.NotAfter,
	}, nil
}

func generate(opts Options, certPath, keyPath string) (*Info, error) {
	hosts := opts.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	validity := opts.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	notBefore := time.Now().Add(-time.Minute)
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"collab"}, CommonName: "collab server"},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(certPath), 0700); err != nil {
		return nil, fmt.Errorf("create certificate directory: %w", err)
	}
	if err := writePEM(certPath, "CERTIFICATE", der, 0644); err != nil {
		return nil, err
	}
	if err := writePEM(keyPath, "PRIVATE KEY", keyDER, 0600); err != nil {
		return nil, err
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse generated certificate: %w", err)
	}
	log.Printf("certs: generated self-signed certificate at %s", certPath)
	return &Info{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(leaf),
		NotAfter:    leaf.NotAfter,
		Generated:   true,
	}, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Fingerprint is the SHA-256 of the DER certificate as "AA:BB:...".
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// ServerConfig builds the listener TLS config for a certificate pair.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
