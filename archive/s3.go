// Package archive persists the terminal outcome of a provisioning attempt
// for fleet audit trails. It is invoked by the CLI after dpsm.Task.Run
// returns, never by the driver itself.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/jairrab/iot-dps-client/dpsm"
)

// S3Archiver writes a JSON record of each provisioning outcome to an
// S3-compatible bucket, keyed by registration id and timestamp.
type S3Archiver struct {
	client     *s3.S3
	bucketName string
	prefix     string
	log        *slog.Logger
}

// NewS3Archiver builds an archiver against bucketName in region, optionally
// against a custom S3-compatible endpoint. Static credentials are used only
// when both accessKey and secretKey are set; otherwise the AWS SDK's default
// credential chain applies.
func NewS3Archiver(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Archiver, error) {
	cfg := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create aws session: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &S3Archiver{client: s3.New(sess), bucketName: bucketName, prefix: prefix, log: log}, nil
}

// record is the archived JSON shape, independent of dpsm.RegistrationResult
// so the archive's wire shape doesn't change every time the driver's
// in-memory struct does.
type record struct {
	RegistrationID string    `json:"registrationId"`
	Lifecycle      string    `json:"lifecycle"`
	AssignedHub    string    `json:"assignedHub,omitempty"`
	DeviceID       string    `json:"deviceId,omitempty"`
	Error          string    `json:"error,omitempty"`
	ArchivedAt     time.Time `json:"archivedAt"`
}

// Archive writes result (or the failure in err) as one JSON object keyed by
// registrationID and the current time.
func (a *S3Archiver) Archive(registrationID string, result *dpsm.RegistrationResult, runErr error) error {
	rec := record{
		RegistrationID: registrationID,
		Lifecycle:      result.Lifecycle.String(),
		ArchivedAt:     time.Now().UTC(),
	}
	if result.State != nil {
		rec.AssignedHub = result.State.AssignedHub
		rec.DeviceID = result.State.DeviceID
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%d.json", a.prefix, registrationID, rec.ArchivedAt.UnixNano())
	_, err = a.client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}

	a.log.Info("archived provisioning result", "registration_id", registrationID, "key", key)
	return nil
}
