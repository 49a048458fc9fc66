// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 reads records from the objects in an S3 bucket.
package s3

import (
	"io"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/json"
	"github.com/pkg/errors"
)

// NewSource gets a source reading every object in rs. ISO 2709 style
// objects are framed with the named preset, or detected per object when
// framing is "auto". JSON objects hold one record per line.
func NewSource(rs *RawSource, input, framing string) (mdk.Source, error) {
	switch input {
	case "iso2709", "":
		return mdk.NewRawRecordSource(rs, framing)
	case "json":
		return json.NewSourceFromRawSource(rs), nil
	}
	return nil, errors.Errorf("unknown input format %q", input)
}

// RawSource hands out one reader per object below a prefix. It is safe for
// concurrent use.
type RawSource struct {
	bucket string
	prefix string

	s3      s3iface.S3API
	objects []*s3.Object
	objIdx  *uint64
}

// NewRawSource lists the objects in bucket matching prefix.
func NewRawSource(region, bucket, prefix string) (*RawSource, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region)},
	)
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	return NewRawSourceFromClient(s3.New(sess), bucket, prefix)
}

// NewRawSourceFromClient is NewRawSource with an existing client.
func NewRawSourceFromClient(client s3iface.S3API, bucket, prefix string) (*RawSource, error) {
	idx := uint64(0)
	rs := &RawSource{
		bucket: bucket,
		prefix: prefix,
		s3:     client,
		objIdx: &idx,
	}
	err := rs.s3.ListObjectsPages(&s3.ListObjectsInput{Bucket: aws.String(rs.bucket), Prefix: aws.String(rs.prefix)},
		func(page *s3.ListObjectsOutput, last bool) bool {
			for _, obj := range page.Contents {
				// "directories" created by the console
				if aws.Int64Value(obj.Size) == 0 {
					continue
				}
				rs.objects = append(rs.objects, obj)
			}
			return true
		})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	return rs, nil
}

// Len is the number of objects the source will read.
func (rs *RawSource) Len() int { return len(rs.objects) }

type objReader struct {
	name string
	body io.ReadCloser
	meta map[string]interface{}
}

func (o *objReader) Read(buf []byte) (n int, err error) {
	return o.body.Read(buf)
}

func (o *objReader) Close() error {
	return o.body.Close()
}

func (o *objReader) Name() string {
	return o.name
}

func (o *objReader) Meta() map[string]interface{} {
	return o.meta
}

// NextReader implements mdk.RawSource. Readers are named
// <bucket>/<object key>.
func (rs *RawSource) NextReader() (mdk.NamedReadCloser, error) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.objects) {
		return nil, io.EOF
	}
	obj := rs.objects[idx]

	result, err := rs.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rs.bucket),
		Key:    obj.Key,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", aws.StringValue(obj.Key))
	}
	return &objReader{
		name: rs.bucket + "/" + aws.StringValue(obj.Key),
		body: result.Body,
		meta: map[string]interface{}{
			"size":     aws.Int64Value(obj.Size),
			"modified": aws.TimeValue(obj.LastModified),
			"etag":     aws.StringValue(obj.ETag),
		},
	}, nil
}
