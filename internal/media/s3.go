package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store хранит изображения товаров в S3-совместимом бакете (AWS S3 или
// MinIO). Минимальная поверхность: один бакет, ключи отображаются в
// ключи объектов напрямую.
type Store struct {
	client  *s3.Client
	bucket  string
	presign *s3.PresignClient
	baseURL *url.URL // явный endpoint для построения публичных URL (MinIO)
	logger  *log.Entry
}

// Config — явные параметры подключения; в prod первичны переменные окружения.
type Config struct {
	Region    string
	Bucket    string
	Endpoint  string // опционально; включает кастомный endpoint (MinIO)
	PathStyle bool
}

// Переменные окружения:
//   CADM_MEDIA_S3_BUCKET=<bucket> (обязательная)
//   CADM_MEDIA_S3_REGION=<region> (по умолчанию us-east-1)
//   CADM_MEDIA_S3_ENDPOINT=<url> (опционально, для MinIO)
//   CADM_MEDIA_S3_PATH_STYLE=true|false (по умолчанию false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (опционально)

// New создаёт медиахранилище из Config.
func New(ctx context.Context, cfg Config, logger *log.Entry) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	if logger == nil {
		logger = log.New().WithField("component", "media-store")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	var base *url.URL
	if cfg.Endpoint != "" {
		if u, err := url.Parse(cfg.Endpoint); err == nil {
			base = u
		}
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		presign: s3.NewPresignClient(client),
		baseURL: base,
		logger:  logger,
	}, nil
}

// OpenFromEnv собирает медиахранилище из окружения процесса.
func OpenFromEnv(ctx context.Context, logger *log.Entry) (*Store, error) {
	bucket := os.Getenv("CADM_MEDIA_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("CADM_MEDIA_S3_BUCKET required for media store")
	}
	cfg := Config{
		Bucket:    bucket,
		Region:    os.Getenv("CADM_MEDIA_S3_REGION"),
		Endpoint:  os.Getenv("CADM_MEDIA_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("CADM_MEDIA_S3_PATH_STYLE"), "true"),
	}
	return New(ctx, cfg, logger)
}

// Put загружает изображение и возвращает ключ объекта и публичный URL.
func (s *Store) Put(ctx context.Context, productID, filename, contentType string, r io.Reader) (string, string, error) {
	key := objectKey(productID, filename)
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", "", fmt.Errorf("put media object: %w", err)
	}

	publicURL, err := s.URL(ctx, key)
	if err != nil {
		return "", "", err
	}
	s.logger.WithFields(log.Fields{
		"key":    key,
		"bucket": s.bucket,
	}).Debug("media object stored")
	return key, publicURL, nil
}

// URL возвращает адрес объекта: прямой при явном endpoint, иначе
// presigned GET на 7 дней.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = strings.TrimRight(u.Path, "/") + "/" + s.bucket + "/" + key
		return u.String(), nil
	}
	out, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: &s.bucket, Key: &key},
		func(po *s3.PresignOptions) { po.Expires = 7 * 24 * time.Hour },
	)
	if err != nil {
		return "", fmt.Errorf("presign media url: %w", err)
	}
	return out.URL, nil
}

// Delete удаляет объект; отсутствие объекта не считается ошибкой.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return fmt.Errorf("delete media object: %w", err)
	}
	return nil
}

// objectKey строит ключ вида products/<productID>/<uuid><ext>,
// чтобы повторная загрузка одноимённого файла не перетирала прежний.
func objectKey(productID, filename string) string {
	ext := ""
	if dot := strings.LastIndex(filename, "."); dot >= 0 {
		ext = strings.ToLower(filename[dot:])
	}
	return "products/" + productID + "/" + uuid.NewString() + ext
}
