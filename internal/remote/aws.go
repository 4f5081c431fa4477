package remote

import (
	"bytes"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/internal/logging"
)

const awsComponent = "remote.aws"

// awsMultipartThreshold mirrors s3manager's own default part-size floor;
// uploads smaller than this go through a single PutObject call instead
// of the multipart uploader.
const awsMultipartThreshold = 5 * 1024 * 1024

// AWSUpload pushes data to an S3 bucket as key, using the standard AWS
// credential chain unless an access key pair is supplied via
// accessKeyID/secretAccessKey (taken with region from the manifest's
// api_key field, formatted "<region>:<access key id>:<secret access key>"
// and split by the caller).
func AWSUpload(region, bucket, key, accessKeyID, secretAccessKey string, data []byte, contentType string) error {
	cfg := aws.NewConfig().WithRegion(region)
	if accessKeyID != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(accessKeyID, secretAccessKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRemoteUpload, awsComponent, "create aws session", err)
	}

	if len(data) < awsMultipartThreshold {
		client := s3.New(sess)
		_, err := client.PutObject(&s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return ferrors.Wrap(ferrors.ErrRemoteUpload, awsComponent, "put object", err)
		}
		logging.Component(awsComponent).Infof("uploaded s3://%s/%s (%d bytes)", bucket, key, len(data))
		return nil
	}

	uploader := s3manager.NewUploader(sess)
	_, err = uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRemoteUpload, awsComponent, "multipart upload", err)
	}
	logging.Component(awsComponent).Infof("uploaded s3://%s/%s via multipart (%d bytes)", bucket, key, len(data))
	return nil
}
