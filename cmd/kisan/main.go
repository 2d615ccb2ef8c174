package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/kisansahayak/kisan/pkg/api/client"
	"github.com/kisansahayak/kisan/pkg/config"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	Email       string `json:"email,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "signup":
		err = commandSignup(args)
	case "signin", "login":
		err = commandSignin(args)
	case "health":
		err = commandHealth(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	username := fs.String("username", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--username is required")
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}

	cfg, client, err := setup(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := client.Signup(ctx, apiclient.SignupRequest{Username: *username, Email: *email, Password: secret})
	if err != nil {
		return err
	}
	cfg.Email = strings.TrimSpace(*email)
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println(resp.Message)
	return nil
}

func commandSignin(args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "Email address (defaults to the last one used)")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	printToken := fs.Bool("print-token", false, "Print the issued token to stdout")
	fs.Parse(args)

	cfg, client, err := setup(*apiBase)
	if err != nil {
		return err
	}
	address := strings.TrimSpace(*email)
	if address == "" {
		address = cfg.Email
	}
	if address == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()
	resp, err := client.Signin(ctx, apiclient.SigninRequest{Email: address, Password: secret})
	if err != nil {
		return err
	}
	cfg.Email = address
	cfg.AccessToken = resp.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println(resp.Message)
	if *printToken {
		fmt.Println(resp.Token)
	}
	return nil
}

func commandHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	fs.Parse(args)

	_, client, err := setup(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", resp.Status, client.BaseURL())
	return nil
}

// setup loads the saved config and resolves the API address: flag, then
// KISAN_API_URL, then the saved value, then the default.
func setup(flagBase string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	cfg.APIBaseURL = resolveAPIBase(flagBase, cfg.APIBaseURL)

	timeout := time.Duration(config.GetInt("KISAN_HTTP_TIMEOUT_SECONDS", 15)) * time.Second
	client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(timeout))
	if err != nil {
		return cliConfig{}, nil, err
	}
	cfg.APIBaseURL = client.BaseURL()
	return cfg, client, nil
}

func resolveAPIBase(flagBase, saved string) string {
	if v := strings.TrimSpace(flagBase); v != "" {
		return v
	}
	if v := strings.TrimSpace(config.GetString("KISAN_API_URL", "")); v != "" {
		return v
	}
	if v := strings.TrimSpace(saved); v != "" {
		return v
	}
	return apiclient.DefaultBaseURL
}

func readSecret(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if override := strings.TrimSpace(config.GetString("KISAN_CONFIG", "")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "kisan", "config.json"), nil
}

func printUsage() {
	fmt.Printf("kisan CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	kisan signup --username alice --email user@example.com [--password secret] [--api http://localhost:3000]
	kisan signin [--email user@example.com] [--password secret] [--print-token] [--api http://localhost:3000]
	kisan health [--api http://localhost:3000]
	kisan version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
