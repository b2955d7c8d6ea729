package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"alpha_gateway/applog"
)

const (
	maskMaxLen    = 24
	previewMaxLen = 128
)

// AppConfig is the persisted user configuration document (app.json).
// A nil field means the key is absent.
type AppConfig struct {
	AlphaKey               *string  `json:"alphaKey,omitempty"`
	LLMEndpoint            *string  `json:"llmEndpoint,omitempty"`
	LLMModel               *string  `json:"llmModel,omitempty"`
	LLMKey                 *string  `json:"llmKey,omitempty"`
	DashboardDefaultSymbol *string  `json:"dashboardDefaultSymbol,omitempty"`
	DashboardSource        *string  `json:"dashboardSource,omitempty"`
	DashboardURL           *string  `json:"dashboardUrl,omitempty"`
	DashboardInterval      *int     `json:"dashboardInterval,omitempty"`
	DashboardSimple        *bool    `json:"dashboardSimple,omitempty"`
	AllowedIPs             []string `json:"allowed_ips,omitempty"`
}

// ConfigPatch is the writable subset of AppConfig. Unknown keys in a request
// body are dropped by decoding into this type.
type ConfigPatch struct {
	AlphaKey               *string `json:"alphaKey"`
	LLMEndpoint            *string `json:"llmEndpoint"`
	LLMModel               *string `json:"llmModel"`
	LLMKey                 *string `json:"llmKey"`
	DashboardDefaultSymbol *string `json:"dashboardDefaultSymbol"`
	DashboardSource        *string `json:"dashboardSource"`
	DashboardURL           *string `json:"dashboardUrl"`
	DashboardInterval      *int    `json:"dashboardInterval"`
	DashboardSimple        *bool   `json:"dashboardSimple"`
}

// MaskedConfig is the read view: secrets replaced by asterisks.
type MaskedConfig struct {
	AlphaKeyMask           string  `json:"alphaKey_mask"`
	LLMKeyMask             string  `json:"llmKey_mask"`
	LLMEndpoint            *string `json:"llmEndpoint"`
	LLMModel               *string `json:"llmModel"`
	DashboardDefaultSymbol *string `json:"dashboardDefaultSymbol"`
	DashboardSource        *string `json:"dashboardSource"`
	DashboardURL           *string `json:"dashboardUrl"`
	DashboardInterval      *int    `json:"dashboardInterval"`
	DashboardSimple        *bool   `json:"dashboardSimple"`
}

type auditEntry struct {
	TS                  string            `json:"ts"`
	IP                  string            `json:"ip"`
	ChangedKeys         []string          `json:"changed_keys"`
	SensitiveLen        map[string]int    `json:"sensitive_len"`
	NonSensitivePreview map[string]string `json:"non_sensitive_preview"`
}

// AppConfigStore reads and writes app.json. Reads go to disk every time so the
// daily update process and manual edits are picked up; writes are serialized
// and replace the file atomically.
type AppConfigStore struct {
	path        string
	auditPath   string
	envAlphaKey string
	envAllowed  []string
	logger      *applog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewAppConfigStore creates a store for the document at path. envAlphaKey and
// envAllowed are used when the document does not set them.
func NewAppConfigStore(path, auditPath, envAlphaKey string, envAllowed []string, logger *applog.Logger) *AppConfigStore {
	return &AppConfigStore{
		path:        path,
		auditPath:   auditPath,
		envAlphaKey: envAlphaKey,
		envAllowed:  envAllowed,
		logger:      logger,
		now:         time.Now,
	}
}

// Load returns the current document. A missing or unreadable file is an empty
// config; a key with an unexpected type is skipped without dropping the others.
func (s *AppConfigStore) Load() AppConfig {
	var cfg AppConfig
	data, err := os.ReadFile(s.path)
	if err != nil {
		return cfg
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn().Str("path", s.path).Err(err).Msg("app config unreadable, treating as empty")
		return cfg
	}

	var bad []string
	check := func(key string, err error) {
		if err != nil {
			bad = append(bad, key)
		}
	}
	check("alphaKey", decodeKey(doc, "alphaKey", &cfg.AlphaKey))
	check("llmEndpoint", decodeKey(doc, "llmEndpoint", &cfg.LLMEndpoint))
	check("llmModel", decodeKey(doc, "llmModel", &cfg.LLMModel))
	check("llmKey", decodeKey(doc, "llmKey", &cfg.LLMKey))
	check("dashboardDefaultSymbol", decodeKey(doc, "dashboardDefaultSymbol", &cfg.DashboardDefaultSymbol))
	check("dashboardSource", decodeKey(doc, "dashboardSource", &cfg.DashboardSource))
	check("dashboardUrl", decodeKey(doc, "dashboardUrl", &cfg.DashboardURL))
	check("dashboardInterval", decodeKey(doc, "dashboardInterval", &cfg.DashboardInterval))
	check("dashboardSimple", decodeKey(doc, "dashboardSimple", &cfg.DashboardSimple))

	if err := decodeKey(doc, "allowed_ips", &cfg.AllowedIPs); err != nil {
		// a single comma separated string is accepted as well
		var list string
		if json.Unmarshal(doc["allowed_ips"], &list) == nil {
			cfg.AllowedIPs = SplitList(list)
		} else {
			check("allowed_ips", err)
		}
	}

	if len(bad) > 0 {
		s.logger.Warn().Str("path", s.path).Strs("keys", bad).Msg("app config keys ignored, unexpected type")
	}
	return cfg
}

// decodeKey decodes doc[key] into dst; dst is untouched when the key is absent or mistyped.
func decodeKey[T any](doc map[string]json.RawMessage, key string, dst *T) error {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// AlphaKey returns the provider key from app.json, falling back to the environment.
func (s *AppConfigStore) AlphaKey() string {
	if cfg := s.Load(); cfg.AlphaKey != nil && *cfg.AlphaKey != "" {
		return *cfg.AlphaKey
	}
	return s.envAlphaKey
}

// AllowedIPs implements middleware.AllowListSource.
func (s *AppConfigStore) AllowedIPs() []string {
	if cfg := s.Load(); len(cfg.AllowedIPs) > 0 {
		return cfg.AllowedIPs
	}
	return s.envAllowed
}

// Masked returns the read view of the configuration
func (s *AppConfigStore) Masked() MaskedConfig {
	cfg := s.Load()
	return MaskedConfig{
		AlphaKeyMask:           Mask(deref(cfg.AlphaKey)),
		LLMKeyMask:             Mask(deref(cfg.LLMKey)),
		LLMEndpoint:            cfg.LLMEndpoint,
		LLMModel:               cfg.LLMModel,
		DashboardDefaultSymbol: cfg.DashboardDefaultSymbol,
		DashboardSource:        cfg.DashboardSource,
		DashboardURL:           cfg.DashboardURL,
		DashboardInterval:      cfg.DashboardInterval,
		DashboardSimple:        cfg.DashboardSimple,
	}
}

// Apply merges the non-nil fields of patch into the document, writes it
// atomically, appends an audit line and returns the changed keys.
// Keys in the file that the patch does not name are preserved.
func (s *AppConfigStore) Apply(patch ConfigPatch, ip string) ([]string, error) {
	values := patch.values()
	if len(values) == 0 {
		return []string{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := map[string]json.RawMessage{}
	if data, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			doc = map[string]json.RawMessage{}
		}
	}

	changed := make([]string, 0, len(values))
	for _, kv := range values {
		raw, err := json.Marshal(kv.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", kv.key, err)
		}
		doc[kv.key] = raw
		changed = append(changed, kv.key)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := WriteFileAtomic(s.path, out); err != nil {
		return nil, err
	}

	s.audit(ip, values)
	s.logger.Info().Str("ip", ip).Strs("changed_keys", changed).Msg("app config updated")
	return changed, nil
}

// audit appends one JSON line; plaintext secrets never reach the file.
func (s *AppConfigStore) audit(ip string, values []keyValue) {
	entry := auditEntry{
		TS:                  s.now().Format("2006-01-02 15:04:05"),
		IP:                  ip,
		ChangedKeys:         make([]string, 0, len(values)),
		SensitiveLen:        map[string]int{},
		NonSensitivePreview: map[string]string{},
	}
	for _, kv := range values {
		entry.ChangedKeys = append(entry.ChangedKeys, kv.key)
		if kv.sensitive {
			entry.SensitiveLen[kv.key] = utf8.RuneCountInString(*kv.value.(*string))
			continue
		}
		entry.NonSensitivePreview[kv.key] = truncate(fmt.Sprint(derefAny(kv.value)), previewMaxLen)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.auditPath), 0755); err != nil {
		s.logger.Warn().Err(err).Msg("audit dir unavailable")
		return
	}
	f, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Warn().Err(err).Msg("audit log unavailable")
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

type keyValue struct {
	key       string
	value     any
	sensitive bool
}

// values lists the set fields in a stable order.
func (p ConfigPatch) values() []keyValue {
	var out []keyValue
	add := func(key string, set bool, v any, sensitive bool) {
		if set {
			out = append(out, keyValue{key: key, value: v, sensitive: sensitive})
		}
	}
	add("alphaKey", p.AlphaKey != nil, p.AlphaKey, true)
	add("llmEndpoint", p.LLMEndpoint != nil, p.LLMEndpoint, false)
	add("llmModel", p.LLMModel != nil, p.LLMModel, false)
	add("llmKey", p.LLMKey != nil, p.LLMKey, true)
	add("dashboardDefaultSymbol", p.DashboardDefaultSymbol != nil, p.DashboardDefaultSymbol, false)
	add("dashboardSource", p.DashboardSource != nil, p.DashboardSource, false)
	add("dashboardUrl", p.DashboardURL != nil, p.DashboardURL, false)
	add("dashboardInterval", p.DashboardInterval != nil, p.DashboardInterval, false)
	add("dashboardSimple", p.DashboardSimple != nil, p.DashboardSimple, false)
	return out
}

// Mask replaces a secret with up to 24 asterisks.
func Mask(secret string) string {
	n := utf8.RuneCountInString(secret)
	if n > maskMaxLen {
		n = maskMaxLen
	}
	return strings.Repeat("*", n)
}

// WriteFileAtomic writes data to a temp file in the target directory and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefAny(v any) any {
	switch p := v.(type) {
	case *string:
		return *p
	case *int:
		return *p
	case *bool:
		return *p
	}
	return v
}
