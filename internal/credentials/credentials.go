package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultFile is where credentials are cached between runs.
const DefaultFile = "credentials.json"

// openAIKeyEnv takes precedence over the key cached in the credentials file.
const openAIKeyEnv = "OPENAI_API_KEY"

// Credentials carries everything needed to reach the external collaborators.
type Credentials struct {
	APIID       int    `json:"api_id"`
	APIHash     string `json:"api_hash"`
	PhoneNumber string `json:"phone_number"`
	OpenAIKey   string `json:"openai_api_key"`
}

// Validate checks that every required field is present.
func (c Credentials) Validate() error {
	if c.APIID == 0 {
		return fmt.Errorf("api_id is required")
	}
	if c.APIHash == "" {
		return fmt.Errorf("api_hash is required")
	}
	if c.PhoneNumber == "" {
		return fmt.Errorf("phone_number is required")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("openai_api_key is required")
	}
	return nil
}

// Prompter reads credentials and authentication challenges from an
// interactive surface. It doubles as the challenge responder handed to the
// feed adapter, so the transport itself never touches a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter wraps the given streams; pass os.Stdin/os.Stdout in production.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// LoginCode asks for the code the transport sent out of band.
func (p *Prompter) LoginCode(ctx context.Context) (string, error) {
	return p.ask(ctx, "Enter the code you received: ")
}

// Password asks for the second-factor passphrase.
func (p *Prompter) Password(ctx context.Context) (string, error) {
	return p.ask(ctx, "Two-factor authentication enabled. Please enter your password: ")
}

func (p *Prompter) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Load reads credentials from path, prompting for and caching them when the
// file is absent or incomplete. OPENAI_API_KEY in the environment takes
// precedence over the cached key and is never asked for interactively.
func Load(path string, prompter *Prompter) (Credentials, error) {
	envKey := os.Getenv(openAIKeyEnv)

	if raw, err := os.ReadFile(path); err == nil {
		var creds Credentials
		if err := json.Unmarshal(raw, &creds); err != nil {
			fmt.Fprintf(prompter.out, "Cannot parse %s: %v\n", path, err)
		} else {
			if envKey != "" {
				creds.OpenAIKey = envKey
			}
			if err := creds.Validate(); err != nil {
				fmt.Fprintf(prompter.out, "%s is incomplete: %v\n", path, err)
			} else {
				return creds, nil
			}
		}
	}

	creds, err := promptAll(prompter, envKey)
	if err != nil {
		return Credentials{}, err
	}
	if err := Save(path, creds); err != nil {
		return Credentials{}, err
	}
	fmt.Fprintf(prompter.out, "Credentials saved to %s. Keep this file secure.\n", path)
	return creds, nil
}

func promptAll(p *Prompter, envKey string) (Credentials, error) {
	ctx := context.Background()
	fmt.Fprintln(p.out, "Please enter your credentials (they will be saved for future use).")

	idText, err := p.ask(ctx, "Telegram API ID (from https://my.telegram.org): ")
	if err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	if _, err := fmt.Sscanf(idText, "%d", &creds.APIID); err != nil {
		return Credentials{}, fmt.Errorf("API ID must be a number")
	}

	if creds.APIHash, err = p.ask(ctx, "Telegram API Hash (from https://my.telegram.org): "); err != nil {
		return Credentials{}, err
	}
	if creds.PhoneNumber, err = p.ask(ctx, "Phone number (with country code, e.g., +1234567890): "); err != nil {
		return Credentials{}, err
	}
	if envKey != "" {
		creds.OpenAIKey = envKey
	} else if creds.OpenAIKey, err = p.ask(ctx, "OpenAI API Key: "); err != nil {
		return Credentials{}, err
	}

	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Save writes the credentials readable only by the owner.
func Save(path string, creds Credentials) error {
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}
