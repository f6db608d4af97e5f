package config

import (
	"os"
	"strings"
)

// localS3Config points report export at the MinIO container of the local
// compose setup.
func localS3Config() S3Config {
	return S3Config{
		Enabled:   envBool("REPORT_S3_ENABLED", true),
		Endpoint:  firstNonEmpty(strings.TrimSpace(os.Getenv("REPORT_MINIO_ENDPOINT")), strings.TrimSpace(os.Getenv("REPORT_S3_ENDPOINT")), "minio:9000"),
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("REPORT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("REPORT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER")), "nexus"),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("REPORT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD")), "nexus12345"),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("REPORT_S3_BUCKET")), "nexus-reports"),
		UseSSL:    false,
	}
}
