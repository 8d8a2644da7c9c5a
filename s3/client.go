package s3

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	log "github.com/sirupsen/logrus"

	"github.com/ncasuk/amf-cv-transformer/archive"
	"github.com/ncasuk/amf-cv-transformer/cv"
)

// Client uploads encoded CV archives to a bucket, one object per archive document.
type Client struct {
	s3         s3iface.S3API
	bucketName string
	prefix     string
}

func NewClient(bucketName, prefix, awsRegion string) (*Client, error) {
	hc := http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   20,
			TLSHandshakeTimeout:   3 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	sess, err := session.NewSession(
		&aws.Config{
			Region:     aws.String(awsRegion),
			MaxRetries: aws.Int(1),
			HTTPClient: &hc,
		})
	if err != nil {
		return nil, err
	}
	return NewClientWithAPI(s3.New(sess), bucketName, prefix), nil
}

func NewClientWithAPI(api s3iface.S3API, bucketName, prefix string) *Client {
	return &Client{
		s3:         api,
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}
}

// deleteBatch is the most keys one DeleteObjects call accepts.
const deleteBatch = 1000

func (c *Client) Write(a *cv.Authority) error {
	st, err := c.Stage(a)
	if err != nil {
		return err
	}
	return st.Commit()
}

// Stage encodes a and lists the objects the previous run left under the
// authority's prefix. Nothing in the bucket changes until Commit.
func (c *Client) Stage(a *cv.Authority) (cv.Staged, error) {
	docs, err := archive.Encode(a)
	if err != nil {
		return nil, err
	}
	dir, err := archive.AuthorityDir(a)
	if err != nil {
		return nil, err
	}
	existing, err := c.listKeys(c.key(dir) + "/")
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(docs))
	for _, d := range docs {
		current[c.key(d.Path)] = true
	}
	var stale []string
	for _, k := range existing {
		if !current[k] {
			stale = append(stale, k)
		}
	}
	return &stagedUpload{client: c, docs: docs, stale: stale}, nil
}

func (c *Client) listKeys(prefix string) ([]string, error) {
	var keys []string
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucketName),
		Prefix: aws.String(prefix),
	}
	err := c.s3.ListObjectsV2Pages(params, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, o := range page.Contents {
			keys = append(keys, aws.StringValue(o.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list %s in bucket %s: %w", prefix, c.bucketName, err)
	}
	return keys, nil
}

type stagedUpload struct {
	client *Client
	docs   []archive.Document
	stale  []string
}

// Commit uploads every document, then deletes the objects the new tree no longer has.
func (s *stagedUpload) Commit() error {
	c := s.client
	for _, d := range s.docs {
		params := &s3.PutObjectInput{
			Bucket:      aws.String(c.bucketName),
			Key:         aws.String(c.key(d.Path)),
			Body:        bytes.NewReader(d.Body),
			ContentType: aws.String("application/json"),
		}
		if _, err := c.s3.PutObject(params); err != nil {
			return fmt.Errorf("upload %s to bucket %s: %w", c.key(d.Path), c.bucketName, err)
		}
	}
	if err := c.deleteKeys(s.stale); err != nil {
		return err
	}
	log.WithField("bucket", c.bucketName).
		WithField("documents", len(s.docs)).
		WithField("removed", len(s.stale)).
		Info("Uploaded CV archive to S3")
	return nil
}

func (s *stagedUpload) Discard() error {
	return nil
}

func (c *Client) deleteKeys(keys []string) error {
	for start := 0; start < len(keys); start += deleteBatch {
		end := start + deleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		objects := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := c.s3.DeleteObjects(&s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucketName),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete stale objects from bucket %s: %w", c.bucketName, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete %s from bucket %s: %s", aws.StringValue(e.Key), c.bucketName, aws.StringValue(e.Message))
		}
	}
	return nil
}

func (c *Client) Healthcheck() fthealth.Check {
	return fthealth.Check{
		BusinessImpact:   "Vocabularies will not be published to the archive bucket",
		Name:             "Check connectivity to S3 bucket",
		PanicGuide:       "Check CV_ARCHIVE_BUCKET and AWS credentials",
		Severity:         2,
		TechnicalSummary: fmt.Sprintf("Cannot access S3 bucket %s", c.bucketName),
		Checker: func() (string, error) {
			params := &s3.HeadBucketInput{
				Bucket: aws.String(c.bucketName),
			}
			if _, err := c.s3.HeadBucket(params); err != nil {
				log.WithError(err).Error("Got error running S3 health check")
				return "Can not perform check on S3 bucket", err
			}
			return "", nil
		},
	}
}

func (c *Client) key(p string) string {
	if c.prefix == "" {
		return p
	}
	return path.Join(c.prefix, p)
}
