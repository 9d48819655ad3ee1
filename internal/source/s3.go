// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bmatcuk/doublestar/v4"
)

// readS3 lists objects under the s3://bucket/prefix location and parses
// every object whose key (relative to the prefix) matches pattern.
//
// Credentials come from the process environment (AWS_ACCESS_KEY_ID /
// AWS_SECRET_ACCESS_KEY), which configuration establishes before any
// source is invoked; absent those, the default AWS credential chain
// applies.
func (s *Source) readS3(ctx context.Context, pattern string) ([]record, error) {
	bucket, prefix, err := parseS3URI(s.location)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := listMatching(ctx, client, bucket, prefix, pattern)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %q under %s", ErrSourceNotFound, pattern, s.location)
	}

	var recs []record
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
		}
		fileRecs, perr := parseLines(obj.Body, key)
		_ = obj.Body.Close() // read-only stream, close error not actionable
		if perr != nil {
			return nil, perr
		}
		recs = append(recs, fileRecs...)
	}
	return recs, nil
}

// listMatching pages through the bucket listing and keeps keys whose
// prefix-relative path matches pattern.
func listMatching(ctx context.Context, client *s3.Client, bucket, prefix, pattern string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix + "/")
	}

	var keys []string
	pager := s3.NewListObjectsV2Paginator(client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := key
			if prefix != "" {
				rel = strings.TrimPrefix(key, prefix+"/")
			}
			ok, err := doublestar.Match(pattern, rel)
			if err != nil {
				return nil, fmt.Errorf("match %q: %w", pattern, err)
			}
			if ok {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

// newS3Client builds an S3 client, preferring the two well-known
// credential environment variables when both are present.
func newS3Client(ctx context.Context) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// parseS3URI splits s3://bucket/prefix into bucket and prefix (the prefix
// may be empty, and carries no trailing slash).
func parseS3URI(location string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(location, "s3://")
	if rest == location || rest == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	return bucket, strings.TrimRight(prefix, "/"), nil
}
