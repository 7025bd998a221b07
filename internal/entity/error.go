package entity

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownVariant  = errors.New("unknown variant")
	ErrUndefinedRoot   = errors.New("undefined root: set the record root or the IMAGERY_ROOT environment variable")
	ErrUndefinedBucket = errors.New("undefined bucket")
	ErrNotConnected    = errors.New("not connected")
	ErrInvalidName     = errors.New("invalid name")
)

// BucketHelp is attached to ErrUndefinedBucket failures.
const BucketHelp = `
You need to define a bucket name. Example:

  remote:
    provider: s3
    bucket: my-bucket-name
`

// ConvertError reports a failed conversion of one variant.
type ConvertError struct {
	Variant string
	Tool    string
	Stderr  string
	Err     error
}

func (e *ConvertError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("convert variant `%s` with %s stderr=`%s`: %v", e.Variant, e.Tool, e.Stderr, e.Err)
	}

	return fmt.Sprintf("convert variant `%s` with %s: %v", e.Variant, e.Tool, e.Err)
}

func (e *ConvertError) Unwrap() error {
	return e.Err
}

// TransportError reports a remote store failure that was not recovered by reconnecting.
type TransportError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
