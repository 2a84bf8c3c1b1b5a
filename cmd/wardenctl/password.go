package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BradenHooton/warden/internal/config"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	"github.com/spf13/cobra"
)

var errRejected = errors.New("password rejected by policy")

type strengthConfig struct {
	username   string
	email      string
	jsonOutput bool
}

func newStrengthCmd() *cobra.Command {
	cfg := &strengthConfig{}

	cmd := &cobra.Command{
		Use:   "strength [password|-]",
		Short: "Score a password against the configured policy",
		Long: `Score a password with the PASSWORD_* policy from the environment.
Exits non-zero when the password would be rejected at registration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrength(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.username, "username", "", "username to check the password against")
	cmd.Flags().StringVar(&cfg.email, "email", "", "email to check the password against")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output the verdict as JSON")

	return cmd
}

func runStrength(cmd *cobra.Command, args []string, cfg *strengthConfig) error {
	password, err := readPassword(cmd, args)
	if err != nil {
		return err
	}

	policy, _, err := config.LoadAuthPolicy()
	if err != nil {
		return err
	}
	evaluator, err := pkgauth.NewStrengthEvaluator(policy)
	if err != nil {
		return err
	}

	verdict := evaluator.Evaluate(password, pkgauth.StrengthContext{Username: cfg.username, Email: cfg.email})

	if cfg.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			return fmt.Errorf("encode verdict: %w", err)
		}
	} else {
		cmd.Printf("score:      %d\n", verdict.Score)
		cmd.Printf("tier:       %s\n", verdict.Tier)
		cmd.Printf("acceptable: %t\n", verdict.Acceptable)
		if len(verdict.Violations) > 0 {
			cmd.Printf("violations: %s\n", strings.Join(verdict.ViolationStrings(), ", "))
		}
	}

	if !verdict.Acceptable {
		return errRejected
	}
	return nil
}

func newHashCmd() *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "hash [password|-]",
		Short: "Hash a password with the configured algorithm",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, args)
			if err != nil {
				return err
			}

			hasher, err := loadHasher(algorithm)
			if err != nil {
				return err
			}

			cred, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			cmd.Println(cred.Hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "override HASH_ALGORITHM (argon2id or bcrypt)")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	var hash string

	cmd := &cobra.Command{
		Use:   "verify --hash <credential> [password|-]",
		Short: "Check a password against a stored credential",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, args)
			if err != nil {
				return err
			}

			hasher, err := loadHasher("")
			if err != nil {
				return err
			}

			cred := pkgauth.Credential{Hash: hash}
			ok, err := hasher.Verify(password, cred)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("password does not match")
			}

			cmd.Println("match")
			if hasher.NeedsUpgrade(cred) {
				cmd.Println("credential would be rehashed on next login")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "stored credential")
	_ = cmd.MarkFlagRequired("hash")

	return cmd
}

func newSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a random JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := pkgauth.GenerateTokenKey()
			if err != nil {
				return err
			}
			cmd.Println(key)
			return nil
		},
	}
}

func loadHasher(algorithm string) (*pkgauth.Hasher, error) {
	_, hashCfg, err := config.LoadAuthPolicy()
	if err != nil {
		return nil, err
	}
	if algorithm != "" {
		hashCfg.Algorithm = pkgauth.Algorithm(strings.ToLower(algorithm))
	}
	return pkgauth.NewHasher(hashCfg)
}
