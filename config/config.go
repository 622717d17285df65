// Package config loads the pool's on-disk TOML configuration into the
// native/pool and native/reserve option structs, applying the same
// decode-or-create-default pattern the rest of the node uses for its own
// configuration files.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"isopool/core/address"
	"isopool/fixedmath"
	"isopool/native/pool"
	"isopool/native/reserve"
)

// File is the raw TOML document shape. Amounts are written as plain
// integers in the file's fixed-point base unit (FP7 = 1e7 denominator)
// rather than decimals, so a config on disk reads "9000000" for 0.9 and
// not "0.9" — this avoids a float round-trip through the asset's real
// economic value anywhere in the loader.
type File struct {
	Pool     PoolFile               `toml:"Pool"`
	Reserves map[string]ReserveFile `toml:"Reserves"`
}

// PoolFile mirrors native/pool.Config with string/int fields that survive
// a TOML round-trip; Load converts it into the typed Config.
type PoolFile struct {
	PoolAddress           string `toml:"PoolAddress"`
	BstopRate             int64  `toml:"BstopRate"`
	MaxPositions          uint32 `toml:"MaxPositions"`
	MaxPriceAgeSeconds    uint64 `toml:"MaxPriceAgeSeconds"`
	BadDebtIncentiveRatio int64  `toml:"BadDebtIncentiveRatio"`
}

// ReserveFile mirrors native/reserve.Config for a single pool asset.
type ReserveFile struct {
	Decimals   uint32 `toml:"Decimals"`
	CFactor    int64  `toml:"CFactor"`
	LFactor    int64  `toml:"LFactor"`
	Util       int64  `toml:"Util"`
	MaxUtil    int64  `toml:"MaxUtil"`
	ROne       int64  `toml:"ROne"`
	RTwo       int64  `toml:"RTwo"`
	RThree     int64  `toml:"RThree"`
	Reactivity uint32 `toml:"Reactivity"`
}

// Loaded holds the fully decoded, typed configuration: the pool-wide
// Config plus one reserve.Config per asset, keyed by bech32 address
// string so callers can RegisterReserve in a stable order.
type Loaded struct {
	Pool     pool.Config
	Reserves map[string]reserve.Config
}

// Load reads path and decodes it into a Loaded configuration. If path
// does not exist, a default single-reserve-free configuration is written
// there and returned, matching the node's own config.Load behavior of
// seeding a fresh file on first run rather than failing.
func Load(path string) (Loaded, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	var raw File
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Loaded{}, fmt.Errorf("config: decode %q: %w", path, err)
	}
	return raw.toLoaded()
}

func createDefault(path string) (Loaded, error) {
	raw := File{
		Pool: PoolFile{
			PoolAddress:           "pool1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqpapmsn",
			BstopRate:             1_000_000, // 10%
			MaxPositions:          12,
			MaxPriceAgeSeconds:    900,
			BadDebtIncentiveRatio: 11_000_000, // 110%
		},
		Reserves: map[string]ReserveFile{},
	}

	f, err := os.Create(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("config: create %q: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(raw); err != nil {
		return Loaded{}, fmt.Errorf("config: write default %q: %w", path, err)
	}

	return raw.toLoaded()
}

func (raw File) toLoaded() (Loaded, error) {
	poolAddr, err := address.Decode(raw.Pool.PoolAddress)
	if err != nil {
		return Loaded{}, fmt.Errorf("config: Pool.PoolAddress: %w", err)
	}

	out := Loaded{
		Pool: pool.Config{
			PoolAddress:           poolAddr,
			BstopRate:             fixedmath.NewAmount(raw.Pool.BstopRate),
			MaxPositions:          raw.Pool.MaxPositions,
			MaxPriceAgeSeconds:    raw.Pool.MaxPriceAgeSeconds,
			BadDebtIncentiveRatio: fixedmath.NewAmount(raw.Pool.BadDebtIncentiveRatio),
		},
		Reserves: make(map[string]reserve.Config, len(raw.Reserves)),
	}

	for assetStr, r := range raw.Reserves {
		if _, err := address.Decode(assetStr); err != nil {
			return Loaded{}, fmt.Errorf("config: Reserves[%q]: %w", assetStr, err)
		}
		out.Reserves[assetStr] = reserve.Config{
			Decimals:   r.Decimals,
			CFactor:    fixedmath.NewAmount(r.CFactor),
			LFactor:    fixedmath.NewAmount(r.LFactor),
			Util:       fixedmath.NewAmount(r.Util),
			MaxUtil:    fixedmath.NewAmount(r.MaxUtil),
			ROne:       fixedmath.NewAmount(r.ROne),
			RTwo:       fixedmath.NewAmount(r.RTwo),
			RThree:     fixedmath.NewAmount(r.RThree),
			Reactivity: r.Reactivity,
		}
	}

	return out, nil
}
