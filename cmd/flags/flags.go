package flags

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the run's logger from the common logging flags: JSON
// or text handler, debug level toggle, and an optional random run id
// attached to every subsequent log line.
func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)

	level := slog.LevelInfo
	if logDebug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

var FlagEndpoint = &cli.StringFlag{
	Name:     "endpoint",
	Required: true,
	Usage:    "DPS-compatible registration endpoint, either a literal https:// URL or a bare service name when --resolve is set",
}

var FlagRegistrationID = &cli.StringFlag{
	Name:  "registration-id",
	Usage: "override the registration id derived from the security provider",
}

var FlagAuthMode = &cli.StringFlag{
	Name:  "auth-mode",
	Value: "symmetric-key",
	Usage: "identity variant to use: symmetric-key, x509, tpm, or tee",
}

var FlagSharedKey = &cli.StringFlag{
	Name:  "shared-key",
	Usage: "shared key for symmetric-key auth (hex)",
}

var FlagVaultAddr = &cli.StringFlag{
	Name:  "vault-addr",
	Usage: "if set, fetch the symmetric-key shared key from this Vault address instead of --shared-key",
}

var FlagPayloadCID = &cli.StringFlag{
	Name:  "payload-cid",
	Usage: "if set, fetch the registration payload from this IPFS CID via --ipfs-addr",
}

var FlagIPFSAddr = &cli.StringFlag{
	Name:  "ipfs-addr",
	Value: "127.0.0.1:5001",
	Usage: "IPFS API address used to resolve --payload-cid",
}

var FlagResolve = &cli.BoolFlag{
	Name:  "resolve",
	Usage: "resolve --endpoint as a DNS SRV service name instead of a literal URL",
}

var FlagDNSServer = &cli.StringFlag{
	Name:  "dns-server",
	Value: "127.0.0.53:53",
	Usage: "DNS server used when --resolve is set",
}

var FlagArchiveBucket = &cli.StringFlag{
	Name:  "archive-bucket",
	Usage: "if set, archive the provisioning result as JSON to this S3 bucket",
}

var FlagArchiveRegion = &cli.StringFlag{
	Name:  "archive-region",
	Value: "us-east-1",
	Usage: "AWS region for --archive-bucket",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var DeviceFlags = append([]cli.Flag{
	FlagEndpoint,
	FlagRegistrationID,
	FlagAuthMode,
	FlagSharedKey,
	FlagVaultAddr,
	FlagPayloadCID,
	FlagIPFSAddr,
	FlagResolve,
	FlagDNSServer,
	FlagArchiveBucket,
	FlagArchiveRegion,
}, CommonFlags...)
