package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"depositwatch/internal/adapters/outbound/chain"
	valueobjects "depositwatch/internal/domain/value_objects"
	"depositwatch/internal/infrastructure/config"
	"depositwatch/internal/infrastructure/walletkeys"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	exitMismatch = 1
	exitError    = 2
)

type verifyResult struct {
	Chain           string  `json:"chain"`
	UserID          string  `json:"user_id"`
	DerivationIndex uint32  `json:"derivation_index"`
	Address         string  `json:"address,omitempty"`
	Memo            *uint32 `json:"memo,omitempty"`
	DepositURI      string  `json:"deposit_uri,omitempty"`
	Expected        string  `json:"expected,omitempty"`
	Match           *bool   `json:"match,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	ErrorCode       string  `json:"error_code,omitempty"`
}

// secretSource returns the BIP-39 mnemonic used for derivation.
type secretSource func() (string, error)

func main() {
	app := newApp(os.Stdout, promptSecret(os.Stdin, os.Stderr))
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
}

func newApp(stdout io.Writer, readSecret secretSource) *cli.App {
	return &cli.App{
		Name:      "addressverify",
		Usage:     "derive a user's deposit address offline and optionally compare it with an expected value",
		Writer:    stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chain", Usage: "eth|bnb|sol|trx|xrp", Required: true},
			&cli.StringFlag{Name: "user", Usage: "user id the address is bound to", Required: true},
			&cli.StringFlag{Name: "expected", Usage: "address (or address?memo=N for xrp) to compare against"},
			&cli.StringFlag{Name: "xrp-shared-address", EnvVars: []string{"XRP_SHARED_ADDRESS"}, Usage: "shared XRP deposit address"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file applied before reading the environment"},
		},
		Action: func(c *cli.Context) error {
			if cfgErr := config.LoadDotEnv(c.String("env-file")); cfgErr != nil {
				return cli.Exit(cfgErr.Message, exitError)
			}

			result, exitCode := verify(c.String("chain"), c.String("user"), c.String("expected"), c.String("xrp-shared-address"), readSecret)
			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return cli.Exit("failed to encode result", exitError)
			}
			fmt.Fprintln(c.App.Writer, string(encoded))
			if exitCode != 0 {
				return cli.Exit("", exitCode)
			}
			return nil
		},
	}
}

func verify(rawChain string, userID string, expected string, sharedAddress string, readSecret secretSource) (verifyResult, int) {
	result := verifyResult{
		Chain:    strings.ToLower(strings.TrimSpace(rawChain)),
		UserID:   strings.TrimSpace(userID),
		Expected: strings.TrimSpace(expected),
	}

	target, appErr := valueobjects.ParseChain(rawChain)
	if appErr != nil {
		return failed(result, appErr.Code, appErr.Message)
	}
	result.Chain = target.String()
	normalizedUser, appErr := valueobjects.NormalizeUserID(userID)
	if appErr != nil {
		return failed(result, appErr.Code, appErr.Message)
	}
	result.UserID = normalizedUser

	mnemonic, err := readSecret()
	if err != nil {
		return failed(result, "master_secret_unavailable", err.Error())
	}
	secret, keyErr := walletkeys.LoadMasterSecret(mnemonic, os.Getenv("WALLET_MASTER_PASSPHRASE"))
	if keyErr != nil {
		return failed(result, string(keyErr.Code), keyErr.Message)
	}
	engine, keyErr := walletkeys.NewEngine(secret, walletkeys.EngineConfig{XRPSharedAddress: strings.TrimSpace(sharedAddress)})
	if keyErr != nil {
		return failed(result, string(keyErr.Code), keyErr.Message)
	}

	adapter := chain.NewAdapter(target, engine, chain.Sources{SharedAddress: sharedAddress})
	derived, appErr := adapter.DeriveAddress(normalizedUser)
	if appErr != nil {
		return failed(result, appErr.Code, appErr.Message)
	}

	result.DerivationIndex = uint32(derived.DerivationIndex)
	result.Address = derived.Address
	result.Memo = derived.Memo
	result.DepositURI = derived.Address
	if derived.Memo != nil {
		result.DepositURI = derived.Address + "?memo=" + strconv.FormatUint(uint64(*derived.Memo), 10)
	}

	if result.Expected == "" {
		return result, 0
	}

	match := matchesExpected(target, derived.AddressCanonical, result.DepositURI, result.Expected)
	result.Match = &match
	if !match {
		result.Reason = "derived address does not match expected address"
		result.ErrorCode = "address_mismatch"
		return result, exitMismatch
	}
	return result, 0
}

func matchesExpected(target valueobjects.Chain, canonical string, depositURI string, expected string) bool {
	if target.UsesSharedAddress() {
		return expected == depositURI
	}
	normalized, appErr := valueobjects.NormalizeAddress(target, expected)
	if appErr != nil {
		return false
	}
	return normalized == canonical
}

func failed(result verifyResult, code string, reason string) (verifyResult, int) {
	result.ErrorCode = code
	result.Reason = reason
	return result, exitError
}

// promptSecret prefers the configured mnemonic and falls back to a no-echo
// prompt when stdin is a terminal.
func promptSecret(stdin *os.File, prompt io.Writer) secretSource {
	return func() (string, error) {
		mnemonic, cfgErr := config.LoadMasterMnemonic()
		if cfgErr == nil {
			return mnemonic, nil
		}
		if cfgErr.Code != "CONFIG_MASTER_SECRET_REQUIRED" {
			return "", errors.New(cfgErr.Message)
		}

		fd := int(stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New(cfgErr.Message)
		}
		fmt.Fprint(prompt, "mnemonic: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.Join(strings.Fields(string(raw)), " "), nil
	}
}
