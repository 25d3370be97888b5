package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"storepay/crypto"
	"storepay/native/stores"
	"storepay/native/tokenlist"
)

// Seed describes registry entries applied on startup so a fresh deployment
// can accept deposits without a round of manual admin calls. Applying a seed
// is idempotent: entries that already exist are left untouched.
type Seed struct {
	Tokens []SeedToken `yaml:"tokens"`
	Stores []SeedStore `yaml:"stores"`
}

type SeedToken struct {
	Issuer           string  `yaml:"issuer"`
	Symbol           string  `yaml:"symbol"`
	ImageURL         string  `yaml:"image_url"`
	SystemFeePercent float64 `yaml:"system_fee_percent"`
	Slippage         float64 `yaml:"slippage"`
}

type SeedStore struct {
	StoreRef   string            `yaml:"store_ref"`
	Name       string            `yaml:"name"`
	Owner      string            `yaml:"owner"`
	Recipients []SeedRecipient   `yaml:"recipients"`
	Tokens     []SeedTokenPolicy `yaml:"tokens"`
}

type SeedRecipient struct {
	Account string `yaml:"account"`
	Weight  uint8  `yaml:"weight"`
}

type SeedTokenPolicy struct {
	Issuer      string  `yaml:"issuer"`
	Symbol      string  `yaml:"symbol"`
	MinSlippage float64 `yaml:"min_slippage"`
	MaxSlippage float64 `yaml:"max_slippage"`
	USDValue    float64 `yaml:"usd_value"`
}

// LoadSeed parses the YAML seed file at path.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed := &Seed{}
	if err := yaml.Unmarshal(raw, seed); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return seed, nil
}

// Apply registers the seed's tokens and stores, skipping entries that are
// already present.
func (s *Seed) Apply(tokens *tokenlist.Registry, storeReg *stores.Registry) error {
	for _, token := range s.Tokens {
		id := tokenlist.TokenID{Issuer: token.Issuer, Symbol: token.Symbol}
		_, err := tokens.Register(id, token.ImageURL, token.SystemFeePercent)
		if err != nil && !errors.Is(err, tokenlist.ErrAlreadyWhitelisted) {
			return fmt.Errorf("seed: token %s: %w", id.String(), err)
		}
		if err == nil && token.Slippage != 0 {
			entry, ok, lookupErr := tokens.Lookup(id)
			if lookupErr != nil {
				return lookupErr
			}
			if ok {
				if err := tokens.SetSlippage(entry.ID, token.Slippage); err != nil {
					return fmt.Errorf("seed: token %s: %w", id.String(), err)
				}
			}
		}
	}

	for _, store := range s.Stores {
		owner, err := crypto.ParseAddress(store.Owner)
		if err != nil {
			return fmt.Errorf("seed: store %s owner: %w", store.StoreRef, err)
		}
		if _, err := storeReg.AddStore(store.StoreRef, store.Name, owner); err != nil {
			if errors.Is(err, stores.ErrStoreExists) || errors.Is(err, stores.ErrOwnerBound) {
				continue
			}
			return fmt.Errorf("seed: store %s: %w", store.StoreRef, err)
		}

		for _, recipient := range store.Recipients {
			account, err := crypto.ParseAddress(recipient.Account)
			if err != nil {
				return fmt.Errorf("seed: store %s recipient: %w", store.StoreRef, err)
			}
			if err := storeReg.AddRecipient(owner, account, recipient.Weight); err != nil {
				return fmt.Errorf("seed: store %s recipient: %w", store.StoreRef, err)
			}
		}

		for _, policy := range store.Tokens {
			entry, ok, err := tokens.Lookup(tokenlist.TokenID{Issuer: policy.Issuer, Symbol: policy.Symbol})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("seed: store %s references unlisted token %s/%s", store.StoreRef, policy.Issuer, policy.Symbol)
			}
			if err := storeReg.AddToken(owner, entry.ID, policy.MinSlippage, policy.MaxSlippage, policy.USDValue); err != nil {
				return fmt.Errorf("seed: store %s token %s: %w", store.StoreRef, entry.Token.String(), err)
			}
		}
	}

	return nil
}
