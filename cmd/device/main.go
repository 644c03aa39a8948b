package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/jairrab/iot-dps-client/archive"
	"github.com/jairrab/iot-dps-client/cmd/flags"
	"github.com/jairrab/iot-dps-client/dpsm"
	"github.com/jairrab/iot-dps-client/payload"
	"github.com/jairrab/iot-dps-client/resolver"
	"github.com/jairrab/iot-dps-client/security"
	"github.com/jairrab/iot-dps-client/transport"
)

func main() {
	app := &cli.App{
		Name:  "device",
		Usage: "run a single device provisioning attempt against a DPS-compatible endpoint",
		Flags: flags.DeviceFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	provider, err := buildSecurityProvider(cCtx, logger)
	if err != nil {
		return fmt.Errorf("build security provider: %w", err)
	}

	payloadBytes, err := resolvePayload(cCtx, logger)
	if err != nil {
		return fmt.Errorf("resolve payload: %w", err)
	}

	ht := &transport.HTTPTransport{BaseURL: cCtx.String(flags.FlagEndpoint.Name), Log: logger}
	if cCtx.Bool(flags.FlagResolve.Name) {
		dnsResolver := resolver.New(cCtx.String(flags.FlagDNSServer.Name))
		ht.Resolve = dnsResolver.Resolve
	}

	var archiver *archive.S3Archiver
	if bucket := cCtx.String(flags.FlagArchiveBucket.Name); bucket != "" {
		archiver, err = archive.NewS3Archiver(bucket, "dps-results", cCtx.String(flags.FlagArchiveRegion.Name), "", "", "", logger)
		if err != nil {
			return fmt.Errorf("build archiver: %w", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)

	var finalResult *dpsm.RegistrationResult
	var finalErr error

	registrationID := cCtx.String(flags.FlagRegistrationID.Name)
	if registrationID == "" {
		registrationID = provider.RegistrationID()
	}

	task, err := dpsm.New(&dpsm.Config{
		SecurityProvider: provider,
		UniqueIdentifier: registrationID,
		Payload:          payloadBytes,
		Log:              logger,
		StatusObserver: func(s dpsm.LifecycleStatus) {
			logger.Info("provisioning lifecycle update", "status", s.String())
		},
		Callback: func(result *dpsm.RegistrationResult, err error, userCtx any) {
			defer wg.Done()
			finalResult = result
			finalErr = err
		},
	}, ht)
	if err != nil {
		return fmt.Errorf("construct provisioning task: %w", err)
	}

	if err := task.Run(context.Background()); err != nil {
		logger.Error("provisioning run failed", "error", err)
	}
	wg.Wait()

	if archiver != nil {
		if archErr := archiver.Archive(registrationID, finalResult, finalErr); archErr != nil {
			logger.Warn("could not archive provisioning result", "error", archErr)
		}
	}

	if finalErr != nil {
		return finalErr
	}

	logger.Info("provisioning succeeded",
		"assigned_hub", finalResult.State.AssignedHub,
		"device_id", finalResult.State.DeviceID)
	return nil
}

func buildSecurityProvider(cCtx *cli.Context, logger *slog.Logger) (dpsm.SecurityProvider, error) {
	switch cCtx.String(flags.FlagAuthMode.Name) {
	case "symmetric-key":
		provider := &security.SymmetricKeyProvider{}
		if addr := cCtx.String(flags.FlagVaultAddr.Name); addr != "" {
			store, err := security.NewVaultBackedKeyStore(addr, "secret", "device/shared-key", logger)
			if err != nil {
				return nil, err
			}
			provider.KeyStore = store
		} else {
			key, err := hex.DecodeString(cCtx.String(flags.FlagSharedKey.Name))
			if err != nil {
				return nil, fmt.Errorf("--shared-key must be hex: %w", err)
			}
			provider.SharedKey = key
		}
		return provider, nil

	case "tpm":
		return &security.TPMProvider{
			RegistrationIDValue: cCtx.String(flags.FlagRegistrationID.Name),
			EndorsementKey:      []byte("endorsement-key-placeholder"),
		}, nil

	case "tee":
		return &security.TEEProvider{RegistrationIDValue: cCtx.String(flags.FlagRegistrationID.Name)}, nil

	case "x509":
		return nil, fmt.Errorf("x509 auth-mode requires a certificate configured in-process, not via flags")

	default:
		return nil, fmt.Errorf("unknown auth-mode %q", cCtx.String(flags.FlagAuthMode.Name))
	}
}

func resolvePayload(cCtx *cli.Context, logger *slog.Logger) ([]byte, error) {
	cid := cCtx.String(flags.FlagPayloadCID.Name)
	if cid == "" {
		return nil, nil
	}
	resolver := payload.NewResolver(cCtx.String(flags.FlagIPFSAddr.Name), logger)
	return resolver.Fetch(payload.CID(cid))
}
