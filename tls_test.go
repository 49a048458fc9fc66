package mdk_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io/ioutil"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
)

func writeKeyPair(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	test.ErrNil(t, err, "GenerateKey")
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "mdk"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	test.ErrNil(t, err, "CreateCertificate")
	keyDER, err := x509.MarshalECPrivateKey(key)
	test.ErrNil(t, err, "MarshalECPrivateKey")

	certPath, keyPath = filepath.Join(dir, "mdk.crt"), filepath.Join(dir, "mdk.key")
	test.ErrNil(t, ioutil.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600), "writing cert")
	test.ErrNil(t, ioutil.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600), "writing key")
	return certPath, keyPath
}

func TestGetTLSConfig(t *testing.T) {
	d, err := ioutil.TempDir("", "mdktls")
	test.ErrNil(t, err, "TempDir")
	defer os.RemoveAll(d)
	certPath, keyPath := writeKeyPair(t, d)

	conf, err := mdk.GetTLSConfig(nil, nil)
	test.ErrNil(t, err, "nil config")
	if conf != nil {
		t.Fatal("expected no tls.Config for a nil TLSConfig")
	}
	conf, err = mdk.GetTLSConfig(&mdk.TLSConfig{}, nil)
	test.ErrNil(t, err, "empty config")
	if conf != nil {
		t.Fatal("expected no tls.Config for an empty TLSConfig")
	}

	conf, err = mdk.GetTLSConfig(&mdk.TLSConfig{
		CertificatePath:    certPath,
		CertificateKeyPath: keyPath,
		CACertPath:         certPath,
	}, mdk.NopLogger{})
	test.ErrNil(t, err, "full config")
	test.MustBe(t, conf.MinVersion, uint16(tls.VersionTLS12))
	cert, err := conf.GetClientCertificate(nil)
	test.ErrNil(t, err, "GetClientCertificate")
	test.MustBe(t, len(cert.Certificate), 1)
	if conf.RootCAs == nil {
		t.Fatal("expected root CAs")
	}

	tests := []struct {
		name string
		conf mdk.TLSConfig
	}{
		{name: "no key", conf: mdk.TLSConfig{CertificatePath: certPath}},
		{name: "missing cert", conf: mdk.TLSConfig{CertificatePath: filepath.Join(d, "nope"), CertificateKeyPath: keyPath}},
		{name: "missing ca", conf: mdk.TLSConfig{CACertPath: filepath.Join(d, "nope")}},
		{name: "bad ca", conf: mdk.TLSConfig{CACertPath: keyPath}},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			if _, err := mdk.GetTLSConfig(&tst.conf, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
