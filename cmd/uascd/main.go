// Command uascd stands up a demo secure-channel server endpoint: it
// accepts OPC UA TCP connections, runs the secure-channel handshake, and
// echoes every application message back to its sender. The service layer
// proper is out of scope for this module; the echo dispatcher exists so
// the channel stack can be exercised end to end from any client.
package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opcua-go/uasc/buffer"
	"github.com/opcua-go/uasc/cryptoprovider"
	"github.com/opcua-go/uasc/interfaces"
	"github.com/opcua-go/uasc/listener"
	"github.com/opcua-go/uasc/pki"
	"github.com/opcua-go/uasc/secchan"
	"github.com/opcua-go/uasc/transport"
	"github.com/opcua-go/uasc/ua"
)

type config struct {
	ListenAddr    string `env:"UASC_LISTEN_ADDR"    envDefault:":4840"`
	CertFile      string `env:"UASC_CERT_FILE"`
	KeyFile       string `env:"UASC_KEY_FILE"`
	KeyStoreDir   string `env:"UASC_KEYSTORE_DIR"`
	KeyStoreName  string `env:"UASC_KEYSTORE_KEY"   envDefault:"server.key"`
	KeyPassphrase string `env:"UASC_KEY_PASSPHRASE"`
	MaxChannels   int64  `env:"UASC_MAX_CHANNELS"   envDefault:"64"`
	LogLevel      string `env:"UASC_LOG_LEVEL"      envDefault:"info"`
	PermissivePKI bool   `env:"UASC_PERMISSIVE_PKI" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("uascd exited")
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	log := logrus.WithField("component", "uascd")

	provider := cryptoprovider.NewDefaultProvider()
	cert, key, err := loadIdentity(cfg, provider)
	if err != nil {
		return err
	}

	var verifier pki.Verifier = pki.RejectAll{}
	if cfg.PermissivePKI {
		verifier = pki.Permissive{}
		log.Warn("permissive PKI enabled, accepting any client certificate")
	}

	chanCfg := secchan.NewConfig(
		secchan.WithIdentity(cert, key),
		secchan.WithTrustedPKI(verifier),
		secchan.WithProvider(provider),
		secchan.WithPolicy(cryptoprovider.PolicyBasic256Sha256,
			cryptoprovider.ModeSign, cryptoprovider.ModeSignAndEncrypt),
		secchan.WithPolicy(cryptoprovider.PolicyAes128Sha256RsaOaep,
			cryptoprovider.ModeSign, cryptoprovider.ModeSignAndEncrypt),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	echo := &echoDispatcher{log: log}
	facade := listener.New(ctx, chanCfg, echo, cfg.MaxChannels, nil)
	echo.sender = facade

	ln, err := transport.ListenTCP(cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.WithField("addr", cfg.ListenAddr).Info("listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return facade.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		facade.Close()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadIdentity resolves the server certificate and private key from the
// configured files, pulling the key out of an encrypted key store when
// one is configured.
func loadIdentity(cfg config, provider cryptoprovider.Provider) (*x509.Certificate, any, error) {
	if cfg.CertFile == "" {
		return nil, nil, fmt.Errorf("UASC_CERT_FILE is required")
	}
	certPEM, err := os.ReadFile(cfg.CertFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read certificate: %w", err)
	}
	der := certPEM
	if block, _ := pem.Decode(certPEM); block != nil {
		der = block.Bytes
	}
	cert, err := provider.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}

	var keyMaterial []byte
	switch {
	case cfg.KeyStoreDir != "":
		ks, err := pki.NewKeyStore(cfg.KeyStoreDir, []byte(cfg.KeyPassphrase))
		if err != nil {
			return nil, nil, err
		}
		keyMaterial, err = ks.LoadKey(cfg.KeyStoreName)
		if err != nil {
			return nil, nil, err
		}
	case cfg.KeyFile != "":
		keyMaterial, err = os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read private key: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("one of UASC_KEY_FILE or UASC_KEYSTORE_DIR is required")
	}

	key, err := provider.ParsePrivateKey(keyMaterial)
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key: %w", err)
	}
	return cert, key, nil
}

// echoDispatcher answers every received message with its own body,
// demonstrating the request_id echo a real service layer performs.
type echoDispatcher struct {
	log    *logrus.Entry
	sender interfaces.Sender
}

func (d *echoDispatcher) OnOpen(id ua.ChannelID) {
	d.log.WithField("channel_id", string(id)).Info("channel up")
}

func (d *echoDispatcher) OnReceive(id ua.ChannelID, typeID buffer.NodeId, body []byte, requestHandle uint32) {
	if err := d.sender.Send(id, typeID, body, requestHandle, 30*time.Second); err != nil {
		d.log.WithField("channel_id", string(id)).WithError(err).Warn("echo failed")
	}
}

func (d *echoDispatcher) OnClose(id ua.ChannelID, status ua.StatusCode) {
	d.log.WithFields(logrus.Fields{
		"channel_id": string(id),
		"status":     status.String(),
	}).Info("channel down")
}

func (d *echoDispatcher) OnRequestFailure(id ua.ChannelID, requestHandle uint32, status ua.StatusCode) {
	d.log.WithFields(logrus.Fields{
		"channel_id":     string(id),
		"request_handle": requestHandle,
		"status":         status.String(),
	}).Warn("request failed")
}
