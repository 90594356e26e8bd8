package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/seu-repo/energy-core/internal/domain"
)

type pointRepo struct{ s *Store }

func (r *pointRepo) Create(ctx context.Context, p *domain.Point) error {
	return r.s.do(func(st *state) error {
		if p.ID == "" {
			return domain.Validation("point id is required")
		}
		for _, existing := range st.points {
			if existing.Code == p.Code {
				return domain.DuplicateCode("point", p.Code)
			}
		}
		st.points[p.ID] = copyPoint(*p)
		return nil
	})
}

func (r *pointRepo) Get(ctx context.Context, id string) (*domain.Point, error) {
	var out *domain.Point
	err := r.s.do(func(st *state) error {
		if p, ok := st.points[id]; ok {
			c := copyPoint(p)
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *pointRepo) GetByCode(ctx context.Context, code string) (*domain.Point, error) {
	var out *domain.Point
	err := r.s.do(func(st *state) error {
		for _, p := range st.points {
			if p.Code == code {
				c := copyPoint(p)
				out = &c
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *pointRepo) GetByCodes(ctx context.Context, codes []string) ([]domain.Point, error) {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	return r.filter(func(p domain.Point) bool { return want[p.Code] })
}

func (r *pointRepo) ListByPrefix(ctx context.Context, prefix string) ([]domain.Point, error) {
	return r.filter(func(p domain.Point) bool {
		return p.IsEnabled && strings.HasPrefix(p.Code, prefix)
	})
}

func (r *pointRepo) ListByDevice(ctx context.Context, deviceID string) ([]domain.Point, error) {
	return r.filter(func(p domain.Point) bool {
		return p.EnergyDeviceID != nil && *p.EnergyDeviceID == deviceID
	})
}

func (r *pointRepo) List(ctx context.Context) ([]domain.Point, error) {
	return r.filter(func(domain.Point) bool { return true })
}

func (r *pointRepo) filter(keep func(domain.Point) bool) ([]domain.Point, error) {
	var out []domain.Point
	err := r.s.do(func(st *state) error {
		for _, p := range st.points {
			if keep(p) {
				out = append(out, copyPoint(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *pointRepo) BindDevice(ctx context.Context, deviceID string, bindings domain.PointBindings) error {
	return r.s.do(func(st *state) error {
		dev, ok := st.devices[deviceID]
		if !ok {
			return domain.NotFound("device", deviceID)
		}

		bound := map[string]bool{}
		for _, pid := range bindings {
			if pid == "" {
				continue
			}
			if _, ok := st.points[pid]; !ok {
				return domain.NotFound("point", pid)
			}
			bound[pid] = true
		}

		for id, p := range st.points {
			if p.EnergyDeviceID != nil && *p.EnergyDeviceID == deviceID && !bound[id] {
				p.EnergyDeviceID = nil
				st.points[id] = p
			}
		}

		for pid := range bound {
			p := st.points[pid]
			if p.EnergyDeviceID != nil && *p.EnergyDeviceID != deviceID {
				st.unbindPoint(*p.EnergyDeviceID, pid)
			}
			owner := deviceID
			p.EnergyDeviceID = &owner
			st.points[pid] = p
		}

		dev.SetBindings(bindings)
		st.devices[deviceID] = dev
		return nil
	})
}

// unbindPoint drops pointID from whichever usage of the device references it
func (st *state) unbindPoint(deviceID, pointID string) {
	dev, ok := st.devices[deviceID]
	if !ok {
		return
	}
	b := dev.Bindings()
	for usage, id := range b {
		if id == pointID {
			delete(b, usage)
		}
	}
	dev.SetBindings(b)
	st.devices[deviceID] = dev
}

func (r *pointRepo) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	n := 0
	err := r.s.do(func(st *state) error {
		for id, p := range st.points {
			if p.EnergyDeviceID != nil && *p.EnergyDeviceID == deviceID {
				delete(st.points, id)
				delete(st.realtime, id)
				n++
			}
		}
		if dev, ok := st.devices[deviceID]; ok {
			dev.SetBindings(nil)
			st.devices[deviceID] = dev
		}
		return nil
	})
	return n, err
}

func (r *pointRepo) Realtime(ctx context.Context, pointID string) (*domain.PointRealtime, error) {
	var out *domain.PointRealtime
	err := r.s.do(func(st *state) error {
		if rt, ok := st.realtime[pointID]; ok {
			out = &rt
		}
		return nil
	})
	return out, err
}

func (r *pointRepo) SaveRealtime(ctx context.Context, rt *domain.PointRealtime) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.points[rt.PointID]; !ok {
			return domain.NotFound("point", rt.PointID)
		}
		st.realtime[rt.PointID] = *rt
		return nil
	})
}

func copyPoint(p domain.Point) domain.Point {
	if p.EnergyDeviceID != nil {
		id := *p.EnergyDeviceID
		p.EnergyDeviceID = &id
	}
	if p.RangeMin != nil {
		v := *p.RangeMin
		p.RangeMin = &v
	}
	if p.RangeMax != nil {
		v := *p.RangeMax
		p.RangeMax = &v
	}
	return p
}
