package main

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ejournal/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("server-id", "", "")
	pflag.String("base-link", "", "")
	pflag.String("tool-base-url", "", "")

	// lti 1.0 config
	pflag.String("lti10-consumer-key", "", "")
	pflag.String("lti10-consumer-secret", "", "")

	// lti 1.3 platform config
	pflag.String("platform-issuer", "", "")
	pflag.String("platform-client-id", "", "")
	pflag.String("platform-deployment-id", "", "")
	pflag.String("platform-auth-login-url", "", "")
	pflag.String("platform-token-url", "", "")
	pflag.String("platform-jwks-url", "", "")
	pflag.String("platform-tool-private-key-file", "", "")
	pflag.String("platform-tool-key-id", "", "")

	// auth config
	pflag.String("auth-private-key-file", "", "")
	pflag.String("auth-issuer", "ejournal", "")
	pflag.Duration("auth-access-ttl", 15*time.Minute, "")
	pflag.Duration("auth-refresh-ttl", 24*time.Hour, "")

	// lms config
	pflag.String("lms-api-base-url", "", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "ejournal:", "")
	pflag.String("redis-consumer-group", "ejournal-workers", "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("EJOURNAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// consumer group裡的行程名稱預設用hostname
	serverID := viper.GetString("server-id")
	if serverID == "" {
		serverID, _ = os.Hostname()
	}

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			ID:          serverID,
			BaseLink:    viper.GetString("base-link"),
			ToolBaseURL: viper.GetString("tool-base-url"),
			Lti10: api.Lti10Config{
				ConsumerKey:    viper.GetString("lti10-consumer-key"),
				ConsumerSecret: viper.GetString("lti10-consumer-secret"),
			},
			Platform: api.PlatformConfig{
				Issuer:         viper.GetString("platform-issuer"),
				ClientID:       viper.GetString("platform-client-id"),
				DeploymentID:   viper.GetString("platform-deployment-id"),
				AuthLoginURL:   viper.GetString("platform-auth-login-url"),
				TokenURL:       viper.GetString("platform-token-url"),
				JwksURL:        viper.GetString("platform-jwks-url"),
				ToolPrivateKey: mustLoadRSAKey(viper.GetString("platform-tool-private-key-file")),
				ToolKeyID:      viper.GetString("platform-tool-key-id"),
			},
			Auth: api.AuthConfig{
				PrivateKey: mustLoadEd25519Key(viper.GetString("auth-private-key-file")),
				Issuer:     viper.GetString("auth-issuer"),
				AccessTTL:  viper.GetDuration("auth-access-ttl"),
				RefreshTTL: viper.GetDuration("auth-refresh-ttl"),
			},
			Lms: api.LmsConfig{
				APIBaseURL: viper.GetString("lms-api-base-url"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:          viper.GetString("redis-addr"),
				Password:      viper.GetString("redis-password"),
				DB:            viper.GetInt("redis-db"),
				KeyPrefix:     viper.GetString("redis-key-prefix"),
				ConsumerGroup: viper.GetString("redis-consumer-group"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.BaseLink != "" &&
		args.ServerConfig.ToolBaseURL != "" &&
		args.ServerConfig.Platform.Issuer != "" &&
		args.ServerConfig.Platform.ClientID != "" &&
		args.ServerConfig.Platform.ToolPrivateKey != nil &&
		args.ServerConfig.Auth.PrivateKey != nil
}

// mustLoadRSAKey 讀取PEM格式的RSA私鑰(deep-link與service token簽章用)
// 路徑為空時回傳nil，交給Validate擋下
func mustLoadRSAKey(path string) *rsa.PrivateKey {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("unable to read rsa key %s: %v", path, err))
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		panic(fmt.Sprintf("no pem block in %s", path))
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		panic(fmt.Sprintf("unable to parse rsa key %s: %v", path, err))
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		panic(fmt.Sprintf("%s is not an rsa private key", path))
	}
	return key
}

// mustLoadEd25519Key 讀取PEM格式的Ed25519私鑰(前端權杖簽發用)
func mustLoadEd25519Key(path string) ed25519.PrivateKey {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("unable to read ed25519 key %s: %v", path, err))
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		panic(fmt.Sprintf("no pem block in %s", path))
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		panic(fmt.Sprintf("unable to parse ed25519 key %s: %v", path, err))
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		panic(fmt.Sprintf("%s is not an ed25519 private key", path))
	}
	return key
}
