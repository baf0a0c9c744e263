package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"printdesign-server/core"
)

// objectAPI is the part of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Keys:
//
//	designs/{userID}/{designID}
//	templates/{templateID}
//	snapshots/{designID}/{viewID}
//	blobs/{blobRef}
type s3Store struct {
	s3Client objectAPI
	bucket   string
}

// NewStore creates a new S3-based store using the default AWS config chain.
func NewStore(ctx context.Context, bucketName string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &s3Store{s3Client: s3.NewFromConfig(cfg), bucket: bucketName}, nil
}

func key(prefix string, parts ...string) (string, error) {
	for _, p := range parts {
		if err := core.ValidateKey(p); err != nil {
			return "", err
		}
	}
	return path.Join(append([]string{prefix}, parts...)...), nil
}

func (s *s3Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.getBytes(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *s3Store) getBytes(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", key, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.putBytes(ctx, key, data, "application/json")
}

func (s *s3Store) putBytes(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) delete(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// listKeys pages through every key under prefix.
func (s *s3Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	for {
		out, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

type designObject struct {
	core.Design
	Owner string `json:"owner"`
}

// DesignStore implementation for user-owned designs
func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Design, error) {
	prefix, err := key("designs", userID)
	if err != nil {
		return nil, err
	}
	keys, err := s.listKeys(ctx, prefix+"/")
	if err != nil {
		return nil, err
	}

	designs := make([]*core.Design, 0, len(keys))
	for _, k := range keys {
		var obj designObject
		if err := s.getJSON(ctx, k, &obj); err != nil {
			logrus.WithError(err).WithField("key", k).Warn("Failed to read design object, skipping")
			continue
		}
		obj.Design.UserID = obj.Owner
		obj.Design.Data = nil
		designs = append(designs, &obj.Design)
	}
	return designs, nil
}

func (s *s3Store) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	k, err := key("designs", userID, id)
	if err != nil {
		return nil, err
	}
	var obj designObject
	if err := s.getJSON(ctx, k, &obj); err != nil {
		return nil, err
	}
	obj.Design.UserID = obj.Owner
	return &obj.Design, nil
}

func (s *s3Store) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	k, err := key("designs", design.UserID, design.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	design.CreatedAt = now
	if existing, err := s.Get(ctx, design.UserID, design.ID); err == nil {
		design.CreatedAt = existing.CreatedAt
	}
	design.UpdatedAt = now
	return s.putJSON(ctx, k, designObject{Design: *design, Owner: design.UserID})
}

func (s *s3Store) Delete(ctx context.Context, userID, id string) error {
	k, err := key("designs", userID, id)
	if err != nil {
		return err
	}
	if _, err := s.getBytes(ctx, k); err != nil {
		return err
	}
	if err := s.delete(ctx, k); err != nil {
		return err
	}

	records, err := s.ListSnapshots(ctx, id)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := s.delete(ctx, path.Join("blobs", rec.PNGBlobRef)); err != nil {
			logrus.WithError(err).Warn("Failed to delete snapshot blob")
		}
		if err := s.delete(ctx, path.Join("snapshots", id, rec.ViewID)); err != nil {
			return err
		}
	}
	return nil
}

// TemplateStore implementation
func (s *s3Store) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	k, err := key("templates", id)
	if err != nil {
		return nil, err
	}
	var t core.Template
	if err := s.getJSON(ctx, k, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *s3Store) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	keys, err := s.listKeys(ctx, "templates/")
	if err != nil {
		return nil, err
	}
	templates := make([]*core.Template, 0, len(keys))
	for _, k := range keys {
		var t core.Template
		if err := s.getJSON(ctx, k, &t); err != nil {
			logrus.WithError(err).WithField("key", k).Warn("Failed to read template object, skipping")
			continue
		}
		templates = append(templates, &t)
	}
	return templates, nil
}

func (s *s3Store) SaveTemplate(ctx context.Context, template *core.Template) error {
	k, err := key("templates", template.ID)
	if err != nil {
		return err
	}
	template.UpdatedAt = time.Now()
	return s.putJSON(ctx, k, template)
}

type snapshotObject struct {
	core.DesignSnapshotRecord
	Uploader string `json:"uploader,omitempty"`
}

// SnapshotStore implementation
func (s *s3Store) PutSnapshot(ctx context.Context, record *core.DesignSnapshotRecord, png []byte) error {
	k, err := key("snapshots", record.DesignID, record.ViewID)
	if err != nil {
		return err
	}
	old, oldErr := s.GetSnapshot(ctx, record.DesignID, record.ViewID)

	record.PNGBlobRef = ulid.Make().String() + ".png"
	record.CreatedAt = time.Now()
	record.ByteSize = int64(len(png))
	if err := s.putBytes(ctx, path.Join("blobs", record.PNGBlobRef), png, "image/png"); err != nil {
		return err
	}
	if err := s.putJSON(ctx, k, snapshotObject{DesignSnapshotRecord: *record, Uploader: record.UserID}); err != nil {
		return err
	}
	if oldErr == nil {
		if err := s.delete(ctx, path.Join("blobs", old.PNGBlobRef)); err != nil {
			logrus.WithError(err).Warn("Failed to delete superseded snapshot blob")
		}
	}
	logrus.WithFields(logrus.Fields{
		"design_id": record.DesignID,
		"view_id":   record.ViewID,
		"blob_ref":  record.PNGBlobRef,
		"size":      len(png),
	}).Info("Snapshot stored")
	return nil
}

func (s *s3Store) GetSnapshot(ctx context.Context, designID, viewID string) (*core.DesignSnapshotRecord, error) {
	k, err := key("snapshots", designID, viewID)
	if err != nil {
		return nil, err
	}
	var obj snapshotObject
	if err := s.getJSON(ctx, k, &obj); err != nil {
		return nil, err
	}
	obj.DesignSnapshotRecord.UserID = obj.Uploader
	return &obj.DesignSnapshotRecord, nil
}

func (s *s3Store) ListSnapshots(ctx context.Context, designID string) ([]*core.DesignSnapshotRecord, error) {
	prefix, err := key("snapshots", designID)
	if err != nil {
		return nil, err
	}
	keys, err := s.listKeys(ctx, prefix+"/")
	if err != nil {
		return nil, err
	}
	records := make([]*core.DesignSnapshotRecord, 0, len(keys))
	for _, k := range keys {
		var obj snapshotObject
		if err := s.getJSON(ctx, k, &obj); err != nil {
			logrus.WithError(err).WithField("key", k).Warn("Failed to read snapshot object, skipping")
			continue
		}
		obj.DesignSnapshotRecord.UserID = obj.Uploader
		records = append(records, &obj.DesignSnapshotRecord)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ViewID < records[j].ViewID })
	return records, nil
}

func (s *s3Store) ReadSnapshot(ctx context.Context, record *core.DesignSnapshotRecord) ([]byte, error) {
	if strings.ContainsAny(record.PNGBlobRef, `/\`) || record.PNGBlobRef == "" {
		return nil, fmt.Errorf("%w: blob %q", core.ErrInvalidKey, record.PNGBlobRef)
	}
	return s.getBytes(ctx, path.Join("blobs", record.PNGBlobRef))
}
