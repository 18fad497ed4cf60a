package upload

import "time"

type FailureReason string

const (
	ReasonNone           FailureReason = ""
	ReasonSizeMismatch   FailureReason = "size_mismatch"
	ReasonHashMismatch   FailureReason = "hash_mismatch"
	ReasonObjectNotFound FailureReason = "object_not_found"
)

type VerificationResult struct {
	ExpectedSize  int64
	ActualSize    int64
	ExpectedHash  string
	ActualHash    string
	Verified      bool
	FailureReason FailureReason
}

// VerificationMetadata is stored as JSON on the document record.
type VerificationMetadata struct {
	Provider     string    `json:"provider"`
	ObjectID     string    `json:"object_id"`
	Digest       string    `json:"digest"`
	RemoteDigest string    `json:"remote_digest,omitempty"`
	ActualSize   int64     `json:"actual_size"`
	Method       string    `json:"verified_method"`
	VerifiedAt   time.Time `json:"verified_at"`
	AccessLinks  []string  `json:"access_links,omitempty"`
}

// TransferMetrics represents upload_metrics
type TransferMetrics struct {
	DocumentID       string
	ClientID         string
	UploadedBy       string
	FileSize         int64
	Method           Method
	HashDurationMS   int64
	UploadDurationMS int64
	SpeedMbps        float64
	RetryCount       int
	ChunksCount      int
	Success          bool
	ErrorMessage     string
	Agent            string
}
