// SPDX-License-Identifier: AGPL-3.0-or-later
package storage

import (
	"fmt"

	"github.com/triops/actioncore/pkg/config"
)

// NewProvider builds the snapshot archival backend for oversized Execution
// Record request/response bodies (spec §4.6 supplemented features). "local"
// is the Community default; "s3" targets S3-compatible object storage for
// multi-instance deployments.
func NewProvider(cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalProvider(cfg.Local.BaseDir)
	case "s3":
		return NewS3Provider(S3Config{
			Endpoint: cfg.S3.Endpoint,
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			UseSSL:   true,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
