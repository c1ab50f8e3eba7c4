// Package config provides XML-based configuration management.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"SheetViz"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Processing ProcessingConfig `xml:"Processing"`
	Security   SecurityConfig   `xml:"Security"`
	Scene      SceneConfig      `xml:"Scene"`
	Advanced   AdvancedConfig   `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int    `xml:"Port"`
	BindAddress     string `xml:"BindAddress"`
	EnableCORS      bool   `xml:"EnableCORS"`
	AllowOrigins    string `xml:"AllowOrigins"`
	ReadTimeout     int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout    int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout     int    `xml:"IdleTimeoutSeconds"`
	BodyLimit       string `xml:"BodyLimit"`
	StaticDirectory string `xml:"StaticDirectory"` // built frontend; empty disables it
}

// StorageConfig contains scratch storage settings
type StorageConfig struct {
	DataDirectory           string `xml:"DataDirectory"`
	UploadsDirectory        string `xml:"UploadsDirectory"`
	TempDirectory           string `xml:"TempDirectory"`
	ScratchRetentionMinutes int    `xml:"ScratchRetentionMinutes"`
	CleanupIntervalMinutes  int    `xml:"CleanupIntervalMinutes"`
}

// ProcessingConfig contains upload and chart generation settings
type ProcessingConfig struct {
	UploadDelayMs     int  `xml:"UploadDelayMs"`
	GenerationDelayMs int  `xml:"GenerationDelayMs"`
	SimulateParsing   bool `xml:"SimulateParsing"`
	MaxChartRows      int  `xml:"MaxChartRows"`
	MaxUploadSizeMB   int  `xml:"MaxUploadSizeMB"`
	RenderCacheMin    int  `xml:"RenderCacheMinutes"`
	EnableCompression bool `xml:"EnableCompression"`
	CompressionLevel  int  `xml:"CompressionLevel"`
}

// SecurityConfig contains file type and access settings
type SecurityConfig struct {
	AllowedFileTypes string `xml:"AllowedFileTypes"`
	UsersFile        string `xml:"UsersFile"`
}

// SceneConfig contains 3D scene streaming settings
type SceneConfig struct {
	FrameIntervalMs int `xml:"FrameIntervalMs"`
	DefaultWidth    int `xml:"DefaultWidth"`
	DefaultHeight   int `xml:"DefaultHeight"`
	MaxWidth        int `xml:"MaxWidth"`
	MaxHeight       int `xml:"MaxHeight"`
}

// AdvancedConfig contains logging options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	LogFile              string `xml:"LogFile"`
	ProductionLogging    bool   `xml:"ProductionLogging"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "60M",
		},
		Storage: StorageConfig{
			DataDirectory:           "./data",
			UploadsDirectory:        "./data/uploads",
			TempDirectory:           "./data/temp",
			ScratchRetentionMinutes: 60,
			CleanupIntervalMinutes:  10,
		},
		Processing: ProcessingConfig{
			UploadDelayMs:     2000,
			GenerationDelayMs: 2000,
			SimulateParsing:   false,
			MaxChartRows:      5000,
			MaxUploadSizeMB:   50,
			RenderCacheMin:    10,
			EnableCompression: true,
			CompressionLevel:  5,
		},
		Security: SecurityConfig{
			AllowedFileTypes: ".xlsx,.xls",
			UsersFile:        "./data/users.yaml",
		},
		Scene: SceneConfig{
			FrameIntervalMs: 33,
			DefaultWidth:    800,
			DefaultHeight:   400,
			MaxWidth:        1920,
			MaxHeight:       1080,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFile:              "./data/logs/sheetviz.log",
			ProductionLogging:    false,
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- SheetViz Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if tempDir := os.Getenv("SHEETVIZ_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Server.StaticDirectory,
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Security.UsersFile,
		&c.Advanced.LogFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// UploadDelay returns the simulated processing delay of an upload.
func (c *AppConfig) UploadDelay() time.Duration {
	return time.Duration(c.Processing.UploadDelayMs) * time.Millisecond
}

// GenerationDelay returns the simulated chart generation delay.
func (c *AppConfig) GenerationDelay() time.Duration {
	return time.Duration(c.Processing.GenerationDelayMs) * time.Millisecond
}

// FrameInterval returns the scene animation frame interval.
func (c *AppConfig) FrameInterval() time.Duration {
	ms := c.Scene.FrameIntervalMs
	if ms <= 0 {
		ms = 33
	}
	return time.Duration(ms) * time.Millisecond
}

// MaxUploadBytes returns the upload size limit; 0 disables it.
func (c *AppConfig) MaxUploadBytes() int64 {
	if c.Processing.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.Processing.MaxUploadSizeMB) << 20
}

// RenderCacheTTL returns how long rendered chart images are cached.
func (c *AppConfig) RenderCacheTTL() time.Duration {
	m := c.Processing.RenderCacheMin
	if m <= 0 {
		m = 10
	}
	return time.Duration(m) * time.Minute
}

// ScratchRetention returns the maximum age of scratch files.
func (c *AppConfig) ScratchRetention() time.Duration {
	return time.Duration(c.Storage.ScratchRetentionMinutes) * time.Minute
}

// CleanupInterval returns the scratch sweep period.
func (c *AppConfig) CleanupInterval() time.Duration {
	m := c.Storage.CleanupIntervalMinutes
	if m <= 0 {
		m = 10
	}
	return time.Duration(m) * time.Minute
}

// AllowedExtensions returns the normalised list of accepted file extensions.
func (c *AppConfig) AllowedExtensions() []string {
	var exts []string
	for _, e := range strings.Split(c.Security.AllowedFileTypes, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return exts
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
	}
	if c.Advanced.LogFile != "" {
		dirs = append(dirs, filepath.Dir(c.Advanced.LogFile))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
