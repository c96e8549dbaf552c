// Пакет reviewclient — HTTP-клиент сервиса автоматической проверки документов.
// Операция: Review (POST /ocr/review, multipart с файлом).
// Поддерживает TLS с кастомным CA (RM_REVIEWER_CA_CERT_PATH).
package reviewclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bigkaa/docreview/internal/domain/verdict"
)

// FilenameHint — имя файла, передаваемое сервису проверки.
const FilenameHint = "submission.pdf"

var (
	// ErrUnavailable — сервис недоступен: ошибка соединения, таймаут или статус не 2xx.
	ErrUnavailable = errors.New("сервис проверки недоступен")
	// ErrMalformedResponse — ответ сервиса не удалось разобрать.
	ErrMalformedResponse = errors.New("некорректный ответ сервиса проверки")
)

// Result — ответ сервиса проверки.
type Result struct {
	Verdict  string            `json:"verdict"`
	Findings []verdict.Finding `json:"findings"`
	Reason   string            `json:"reason,omitempty"`
	// Диагностические поля передаются дальше без интерпретации
	Details        json.RawMessage `json:"details,omitempty"`
	SectionCounts  json.RawMessage `json:"section_counts,omitempty"`
	ProcessingTime string          `json:"processing_time,omitempty"`
	DebugText      string          `json:"debug_text,omitempty"`
}

// Decision возвращает разобранный вердикт.
func (r *Result) Decision() verdict.Verdict {
	return verdict.Decode(r.Verdict)
}

// Options — параметры клиента.
type Options struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// CACertPath — путь к CA-сертификату (пустая строка — системный пул)
	CACertPath string
}

// Client — HTTP-клиент сервиса проверки.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиента. Таймаут соединения задаётся dialer-ом,
// таймаут чтения — ожиданием заголовков ответа.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	if opts.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата сервиса проверки: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат сервиса проверки добавлен в пул доверия",
			slog.String("ca_cert", opts.CACertPath),
		)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.ConnectTimeout + opts.ReadTimeout,
		},
		logger: logger.With(slog.String("component", "review_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("в %s нет PEM-сертификатов", caCertPath)
	}

	return &tls.Config{RootCAs: caCertPool}, nil
}

// Review отправляет файл на проверку.
// POST {base}/ocr/review, multipart: часть "file" с именем FilenameHint.
func (c *Client) Review(ctx context.Context, content io.Reader) (*Result, error) {
	reqURL := c.baseURL + "/ocr/review"

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", FilenameHint)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("создание запроса Review: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.Findings == nil {
		result.Findings = []verdict.Finding{}
	}

	c.logger.Debug("Ответ сервиса проверки получен",
		slog.String("verdict", result.Verdict),
		slog.Int("findings", len(result.Findings)),
		slog.Duration("duration", time.Since(start)),
	)

	return &result, nil
}
