package pool

import (
	"encoding/json"
	"fmt"

	"isopool/fixedmath"
	"isopool/native/auction"
	"isopool/native/emissions"
	"isopool/native/position"
	"isopool/native/reserve"
	"isopool/storage"
)

// Store implements spec section 6.4's storage interface on top of a
// storage.Cache: typed get/set methods that marshal each pool entity to and
// from the injected key/value layer.
type Store struct {
	cache *storage.Cache
}

// NewStore wraps a per-transaction cache with the pool's typed accessors.
func NewStore(cache *storage.Cache) *Store { return &Store{cache: cache} }

func keyPoolConfig() string                       { return "pool/config" }
func keyReserveData(asset string) string          { return "reserve/data/" + asset }
func keyReserveList() string                      { return "reserve/list" }
func keyPositions(user string) string             { return "positions/" + user }
func keyAuction(kind auction.Kind, user string) string {
	return fmt.Sprintf("auction/%d/%s", kind, user)
}
func keyUserEmissions(user string, reserveIndex uint32, side emissions.Side) string {
	return fmt.Sprintf("emissions/user/%s/%d/%d", user, reserveIndex, side)
}
func keyReserveEmissions(reserveIndex uint32, side emissions.Side) string {
	return fmt.Sprintf("emissions/reserve/%d/%d", reserveIndex, side)
}

func (s *Store) getJSON(key string, out interface{}) (bool, error) {
	raw, ok, err := s.cache.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(key string, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	s.cache.Set(key, raw)
	return nil
}

// GetConfig loads the pool's global configuration.
func (s *Store) GetConfig() (Config, bool, error) {
	var cfg Config
	ok, err := s.getJSON(keyPoolConfig(), &cfg)
	return cfg, ok, err
}

// SetConfig persists the pool's global configuration.
func (s *Store) SetConfig(cfg Config) error {
	return s.setJSON(keyPoolConfig(), cfg)
}

// GetReserveData loads one reserve's full mutable accounting state.
func (s *Store) GetReserveData(asset string) (*reserve.Reserve, bool, error) {
	var r reserve.Reserve
	ok, err := s.getJSON(keyReserveData(asset), &r)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &r, true, nil
}

// SetReserveData persists one reserve's full mutable accounting state.
func (s *Store) SetReserveData(asset string, r *reserve.Reserve) error {
	return s.setJSON(keyReserveData(asset), r)
}

// GetReserveList returns the dense-indexed ordered list of reserve asset
// identifiers; position in the slice matches Reserve.Index.
func (s *Store) GetReserveList() ([]string, error) {
	var list []string
	if _, err := s.getJSON(keyReserveList(), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AppendReserveList appends a newly initialized reserve's asset identifier;
// reserve indexes are dense and assigned in creation order and are never
// reused, even if the reserve is later frozen.
func (s *Store) AppendReserveList(asset string) (uint32, error) {
	list, err := s.GetReserveList()
	if err != nil {
		return 0, err
	}
	index := uint32(len(list))
	list = append(list, asset)
	return index, s.setJSON(keyReserveList(), list)
}

// GetPositions loads a user's Positions snapshot, returning an empty one if
// the user has no prior entry.
func (s *Store) GetPositions(user string) (*position.Positions, error) {
	var p position.Positions
	ok, err := s.getJSON(keyPositions(user), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return position.New(), nil
	}
	if p.Collateral == nil {
		p.Collateral = make(map[uint32]fixedmath.Amount)
	}
	if p.Liabilities == nil {
		p.Liabilities = make(map[uint32]fixedmath.Amount)
	}
	if p.Supply == nil {
		p.Supply = make(map[uint32]fixedmath.Amount)
	}
	return &p, nil
}

// SetPositions persists a user's Positions snapshot, deleting the record
// entirely once all three maps are empty (spec section 3 lifecycle).
func (s *Store) SetPositions(user string, p *position.Positions) error {
	if p.IsEmpty() {
		s.cache.Delete(keyPositions(user))
		return nil
	}
	return s.setJSON(keyPositions(user), p)
}

// GetAuction loads an auction record for (kind, user), if any.
func (s *Store) GetAuction(kind auction.Kind, user string) (*auction.Data, bool, error) {
	var a auction.Data
	ok, err := s.getJSON(keyAuction(kind, user), &a)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &a, true, nil
}

// SetAuction persists an auction record.
func (s *Store) SetAuction(kind auction.Kind, user string, a *auction.Data) error {
	return s.setJSON(keyAuction(kind, user), a)
}

// DeleteAuction removes an auction record, used when it is fully filled or
// the user's health factor has recovered.
func (s *Store) DeleteAuction(kind auction.Kind, user string) {
	s.cache.Delete(keyAuction(kind, user))
}

// GetReserveEmissions loads the lazy per-(reserve,side) emission index.
func (s *Store) GetReserveEmissions(reserveIndex uint32, side emissions.Side) (*emissions.Reserve, error) {
	var e emissions.Reserve
	ok, err := s.getJSON(keyReserveEmissions(reserveIndex, side), &e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emissions.NewReserve(), nil
	}
	return &e, nil
}

// SetReserveEmissions persists the per-(reserve,side) emission index.
func (s *Store) SetReserveEmissions(reserveIndex uint32, side emissions.Side, e *emissions.Reserve) error {
	return s.setJSON(keyReserveEmissions(reserveIndex, side), e)
}

// GetUserEmissions loads a user's per-(reserve,side) accrual record,
// starting fresh at startIndex if none exists.
func (s *Store) GetUserEmissions(user string, reserveIndex uint32, side emissions.Side, startIndex fixedmath.Amount) (*emissions.User, error) {
	var u emissions.User
	ok, err := s.getJSON(keyUserEmissions(user, reserveIndex, side), &u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emissions.NewUser(startIndex), nil
	}
	return &u, nil
}

// SetUserEmissions persists a user's per-(reserve,side) accrual record.
func (s *Store) SetUserEmissions(user string, reserveIndex uint32, side emissions.Side, u *emissions.User) error {
	return s.setJSON(keyUserEmissions(user, reserveIndex, side), u)
}
