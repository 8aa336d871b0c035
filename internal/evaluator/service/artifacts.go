package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"path"

	"neurojudge/internal/common/storage"
	"neurojudge/internal/evaluator/metrics"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

// Publisher writes rendered images and result documents to object storage.
type Publisher struct {
	storage   storage.ObjectStorage
	bucket    string
	namespace string
}

// NewPublisher creates a publisher writing under namespace in bucket.
func NewPublisher(s storage.ObjectStorage, bucket, namespace string) *Publisher {
	return &Publisher{storage: s, bucket: bucket, namespace: namespace}
}

// ImageKey is where the mask image of a dataset is published.
func (p *Publisher) ImageKey(id int64, dataset string) string {
	return path.Join(p.namespace, "images", fmt.Sprint(id), dataset, "sources.png")
}

// ResultsKey is where the results document of a submission is published.
func (p *Publisher) ResultsKey(id int64) string {
	return path.Join(p.namespace, "results", fmt.Sprintf("%d.json", id))
}

// Image encodes img as PNG and uploads it.
func (p *Publisher) Image(ctx context.Context, id int64, dataset string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return appErr.Wrapf(err, appErr.ArtifactPublishFailed, "encode image failed")
	}
	return p.put(ctx, p.ImageKey(id, dataset), buf.Bytes(), "image/png")
}

// Results is the published document for an executed submission.
type Results struct {
	Submission model.Summary   `json:"submission"`
	Info       model.Info      `json:"info"`
	Metrics    metrics.Metrics `json:"metrics"`
}

// Results uploads the summary, metadata and metrics of sub.
func (p *Publisher) Results(ctx context.Context, sub model.Submission, info model.Info, m metrics.Metrics) error {
	body, err := json.Marshal(Results{Submission: sub.Summarize(), Info: info, Metrics: m})
	if err != nil {
		return appErr.Wrapf(err, appErr.ArtifactPublishFailed, "encode results failed")
	}
	return p.put(ctx, p.ResultsKey(sub.ID), body, "application/json")
}

func (p *Publisher) put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := p.storage.PutObject(ctx, p.bucket, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return appErr.Wrapf(err, appErr.ArtifactPublishFailed, "publish %s failed", key)
	}
	return nil
}
