package oss

import (
	"fmt"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/pulse_server/config"
)

const defaultSignedURLTTL = int64(3600)

type Client struct {
	bucket     *oss.Bucket
	bucketName string
	endpoint   string
	cdnDomain  string
	signedTTL  int64
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	ttl := cfg.PlaybackURLTTLSecs
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}

	return &Client{
		bucket:     bucket,
		bucketName: cfg.BucketName,
		endpoint:   cfg.Endpoint,
		cdnDomain:  cfg.CDNDomain,
		signedTTL:  ttl,
	}, nil
}

// GetURL 获取视频的公开地址（不带签名）
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.endpoint, objectKey)
}

// GetSignedURL 生成带签名的临时播放地址，未指定时使用配置的有效期
func (c *Client) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	expire := c.signedTTL
	if len(expireSeconds) > 0 && expireSeconds[0] > 0 {
		expire = expireSeconds[0]
	}

	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, expire)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return signedURL, nil
}

// SignedURLTTL 签名地址有效期（秒）
func (c *Client) SignedURLTTL() int64 {
	return c.signedTTL
}
