package storage

import (
	"context"
	"testing"
)

func TestParseS3URL(t *testing.T) {
	cases := []struct {
		in             string
		bucket, prefix string
		ok             bool
	}{
		{"s3://bucket/data/sets", "bucket", "data/sets", true},
		{"s3://bucket/data/", "bucket", "data", true},
		{"s3://bucket", "bucket", "", true},
		{"s3://bucket/", "bucket", "", true},
		{"s3://", "", "", false},
		{"processed", "", "", false},
		{"/abs/path", "", "", false},
	}
	for _, tc := range cases {
		bucket, prefix, ok := ParseS3URL(tc.in)
		if bucket != tc.bucket || prefix != tc.prefix || ok != tc.ok {
			t.Errorf("ParseS3URL(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, bucket, prefix, ok, tc.bucket, tc.prefix, tc.ok)
		}
	}
}

func TestForURLLocal(t *testing.T) {
	store, err := ForURL(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*Local); !ok {
		t.Fatalf("store = %T, want *Local", store)
	}
}
