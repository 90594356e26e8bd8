package topology

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
)

// Change operations carried by ChangeEvent
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpImport = "import"
)

// ChangeEvent is published on topology.changed after a mutation commits
type ChangeEvent struct {
	Kind domain.NodeKind `json:"kind"`
	Op   string          `json:"op"`
	ID   string          `json:"id,omitempty"`
	Code string          `json:"code"`
	At   time.Time       `json:"at"`
}

// Service maintains the electrical hierarchy and the device/point links
type Service struct {
	store   ports.Store
	matcher *Matcher
	clock   ports.Clock
	events  ports.EventPublisher
	log     *zap.Logger
}

func NewService(store ports.Store, matcher *Matcher, clock ports.Clock, events ports.EventPublisher, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		matcher: matcher,
		clock:   clock,
		events:  events,
		log:     log,
	}
}

type emitFunc func(kind domain.NodeKind, op, id, code string)

// mutate runs fn in one transaction and publishes the collected events once it commits
func (s *Service) mutate(ctx context.Context, name string, fn func(ctx context.Context, tx ports.Store, emit emitFunc) error) error {
	ctx, span := telemetry.StartSpan(ctx, "topology."+name)
	defer span.End()

	var pending []ChangeEvent
	emit := func(kind domain.NodeKind, op, id, code string) {
		pending = append(pending, ChangeEvent{Kind: kind, Op: op, ID: id, Code: code, At: s.clock.Now()})
	}
	err := s.store.Transaction(ctx, func(tx ports.Store) error {
		return fn(ctx, tx, emit)
	})
	if err != nil {
		return s.fail(ctx, name, err)
	}

	for _, ev := range pending {
		telemetry.TopologyMutationsTotal.WithLabelValues(string(ev.Kind), ev.Op).Inc()
		if s.events == nil {
			continue
		}
		if err := s.events.Publish(ctx, ports.SubjectTopologyChanged, ev); err != nil {
			s.log.Warn("Failed to publish topology change",
				zap.String("kind", string(ev.Kind)),
				zap.String("code", ev.Code),
				zap.Error(err),
			)
		}
	}
	return nil
}

// fail passes core errors through and turns anything else into INTERNAL with a trace id
func (s *Service) fail(ctx context.Context, op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	traceID := telemetry.TraceID(ctx)
	s.log.Error("Topology operation failed",
		zap.String("op", op),
		zap.String("trace_id", traceID),
		zap.Error(err),
	)
	return domain.Internal(traceID, err)
}

// CreateNode inserts node under its parent and returns the new id. Devices are
// bound to their measurement points in the same transaction.
func (s *Service) CreateNode(ctx context.Context, kind domain.NodeKind, node domain.Node) (string, error) {
	if node == nil || node.Kind() != kind {
		return "", domain.Validation("payload does not describe a %s", kind)
	}
	err := s.mutate(ctx, "CreateNode", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		return s.create(ctx, tx, node, emit)
	})
	if err != nil {
		return "", err
	}
	return node.NodeID(), nil
}

func (s *Service) create(ctx context.Context, tx ports.Store, node domain.Node, emit emitFunc) error {
	setID(node)
	if err := node.Validate(); err != nil {
		return err
	}
	if err := s.checkParent(ctx, tx, node); err != nil {
		return err
	}
	existing, err := tx.Topology().GetByCode(ctx, node.Kind(), node.NodeCode())
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.DuplicateCode(node.Kind(), node.NodeCode())
	}
	if err := tx.Topology().Create(ctx, node); err != nil {
		return err
	}
	if dev, ok := node.(*domain.PowerDevice); ok {
		if _, err := s.bindDevice(ctx, tx, dev); err != nil {
			return err
		}
	}
	emit(node.Kind(), OpCreate, node.NodeID(), node.NodeCode())
	return nil
}

// UpdateNode applies a partial patch. A changed parent is revalidated, and a
// device whose circuit, code or area changed is matched again.
func (s *Service) UpdateNode(ctx context.Context, kind domain.NodeKind, id string, patch Patch) error {
	if patch == nil || patch.Kind() != kind {
		return domain.Validation("patch does not describe a %s", kind)
	}
	return s.mutate(ctx, "UpdateNode", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		return s.update(ctx, tx, kind, id, patch, emit)
	})
}

func (s *Service) update(ctx context.Context, tx ports.Store, kind domain.NodeKind, id string, patch Patch, emit emitFunc) error {
	node, err := tx.Topology().Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if node == nil {
		return domain.NotFound(string(kind), id)
	}

	var rematch bool
	switch n := node.(type) {
	case *domain.PowerDevice:
		circuit, code, area := n.CircuitID, n.Code, n.AreaCode
		patch.apply(n)
		rematch = n.CircuitID != circuit || n.Code != code || n.AreaCode != area
	case *domain.DistributionPanel:
		meter := n.MeterPointID
		patch.apply(n)
		if n.MeterPointID != meter {
			children, err := tx.Topology().ListChildPanels(ctx, n.ID)
			if err != nil {
				return err
			}
			if len(children) > 0 {
				return domain.InvalidParent("panel %s has sub-panels and cannot leave meter point %s", n.Code, meter)
			}
		}
	default:
		patch.apply(node)
	}

	if node.NodeID() != id {
		return domain.Validation("%s id cannot change", kind)
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if err := s.checkParent(ctx, tx, node); err != nil {
		return err
	}
	if err := tx.Topology().Save(ctx, node); err != nil {
		return err
	}
	if rematch {
		if _, err := s.bindDevice(ctx, tx, node.(*domain.PowerDevice)); err != nil {
			return err
		}
	}
	emit(kind, OpUpdate, id, node.NodeCode())
	return nil
}

// DeleteNode removes a node. Without cascade a node with children fails with
// HAS_CHILDREN; with cascade the subtree goes bottom-up along with every point
// bound to a removed device. The counts returned are those actually deleted.
func (s *Service) DeleteNode(ctx context.Context, kind domain.NodeKind, id string, cascade bool) (domain.ImpactCounts, error) {
	var counts domain.ImpactCounts
	err := s.mutate(ctx, "DeleteNode", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		c, err := s.delete(ctx, tx, kind, id, cascade, emit)
		counts = c
		return err
	})
	if err != nil {
		return domain.ImpactCounts{}, err
	}
	return counts, nil
}

func (s *Service) delete(ctx context.Context, tx ports.Store, kind domain.NodeKind, id string, cascade bool, emit emitFunc) (domain.ImpactCounts, error) {
	node, err := tx.Topology().Get(ctx, kind, id)
	if err != nil {
		return domain.ImpactCounts{}, err
	}
	if node == nil {
		return domain.ImpactCounts{}, domain.NotFound(string(kind), id)
	}
	if !cascade {
		n, err := tx.Topology().CountChildren(ctx, kind, id)
		if err != nil {
			return domain.ImpactCounts{}, err
		}
		if n > 0 {
			return domain.ImpactCounts{}, domain.HasChildren(kind, id)
		}
	}

	sub, err := collect(ctx, tx, kind, id)
	if err != nil {
		return domain.ImpactCounts{}, err
	}
	predicted := sub.counts()

	actual, err := sub.remove(ctx, tx, kind, id)
	if err != nil {
		return domain.ImpactCounts{}, err
	}
	if actual != predicted {
		return actual, domain.Internal(telemetry.TraceID(ctx),
			errors.New("deleted "+actual.String()+", expected "+predicted.String()))
	}
	emit(kind, OpDelete, id, node.NodeCode())
	return actual, nil
}

// ImpactOfDelete counts the descendants a cascade delete of the node would remove
func (s *Service) ImpactOfDelete(ctx context.Context, kind domain.NodeKind, id string) (domain.ImpactCounts, error) {
	node, err := s.store.Topology().Get(ctx, kind, id)
	if err != nil {
		return domain.ImpactCounts{}, s.fail(ctx, "ImpactOfDelete", err)
	}
	if node == nil {
		return domain.ImpactCounts{}, domain.NotFound(string(kind), id)
	}
	sub, err := collect(ctx, s.store, kind, id)
	if err != nil {
		return domain.ImpactCounts{}, s.fail(ctx, "ImpactOfDelete", err)
	}
	return sub.counts(), nil
}

// SetShiftConfig creates or replaces the shift configuration of a device
func (s *Service) SetShiftConfig(ctx context.Context, cfg *domain.DeviceShiftConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, "SetShiftConfig", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		n, err := tx.Topology().Get(ctx, domain.KindDevice, cfg.DeviceID)
		if err != nil {
			return err
		}
		if n == nil {
			return domain.NotFound("device", cfg.DeviceID)
		}
		if cfg.ID == "" {
			cfg.ID = uuid.NewString()
		}
		if err := tx.Topology().SaveShiftConfig(ctx, cfg); err != nil {
			return err
		}
		emit(domain.KindDevice, OpUpdate, n.NodeID(), n.NodeCode())
		return nil
	})
}

func setID(node domain.Node) {
	if node.NodeID() != "" {
		return
	}
	id := uuid.NewString()
	switch n := node.(type) {
	case *domain.Transformer:
		n.ID = id
	case *domain.MeterPoint:
		n.ID = id
	case *domain.DistributionPanel:
		n.ID = id
	case *domain.DistributionCircuit:
		n.ID = id
	case *domain.PowerDevice:
		n.ID = id
	}
}

// checkParent enforces that node hangs under an existing parent of the right kind
func (s *Service) checkParent(ctx context.Context, tx ports.Store, node domain.Node) error {
	kind := node.Kind()
	if kind == domain.KindTransformer {
		return nil
	}

	if p, ok := node.(*domain.DistributionPanel); ok && p.MeterPointID == "" && p.ParentID != nil {
		// a sub-panel without a meter point inherits its parent's
		if parent, err := getPanel(ctx, tx, *p.ParentID); err == nil && parent != nil {
			p.MeterPointID = parent.MeterPointID
		}
	}

	parentID := node.ParentRef()
	if parentID == "" {
		return domain.InvalidParent("%s %s requires a %s", kind, node.NodeCode(), kind.ParentKind())
	}
	parent, err := tx.Topology().Get(ctx, kind.ParentKind(), parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return domain.InvalidParent("%s %s: %s %s does not exist", kind, node.NodeCode(), kind.ParentKind(), parentID)
	}

	if p, ok := node.(*domain.DistributionPanel); ok {
		return checkPanelPlacement(ctx, tx, p)
	}
	return nil
}

// checkPanelPlacement rejects a parent panel under another meter point, cycles,
// and nesting deeper than MaxPanelDepth
func checkPanelPlacement(ctx context.Context, tx ports.Store, p *domain.DistributionPanel) error {
	height, err := subtreeHeight(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	if p.ParentID == nil {
		if height > domain.MaxPanelDepth {
			return domain.InvalidParent("panel %s nesting exceeds %d levels", p.Code, domain.MaxPanelDepth)
		}
		return nil
	}

	ancestors := 0
	visited := map[string]bool{p.ID: true}
	for cur := *p.ParentID; cur != ""; {
		if visited[cur] {
			return domain.InvalidParent("panel %s would form a cycle", p.Code)
		}
		visited[cur] = true
		parent, err := getPanel(ctx, tx, cur)
		if err != nil {
			return err
		}
		if parent == nil {
			return domain.InvalidParent("parent panel %s does not exist", cur)
		}
		if ancestors == 0 && parent.MeterPointID != p.MeterPointID {
			return domain.InvalidParent("parent panel %s belongs to another meter point", parent.Code)
		}
		ancestors++
		if ancestors+height > domain.MaxPanelDepth {
			return domain.InvalidParent("panel %s nesting exceeds %d levels", p.Code, domain.MaxPanelDepth)
		}
		if parent.ParentID == nil {
			break
		}
		cur = *parent.ParentID
	}
	return nil
}

// subtreeHeight is the number of panel levels from id down to its deepest sub-panel.
// A panel that does not exist yet has height 1.
func subtreeHeight(ctx context.Context, tx ports.Store, id string) (int, error) {
	if id == "" {
		return 1, nil
	}
	height := 0
	level := []string{id}
	visited := map[string]bool{id: true}
	for len(level) > 0 && height <= domain.MaxPanelDepth {
		height++
		var next []string
		for _, pid := range level {
			children, err := tx.Topology().ListChildPanels(ctx, pid)
			if err != nil {
				return 0, err
			}
			for _, c := range children {
				if !visited[c.ID] {
					visited[c.ID] = true
					next = append(next, c.ID)
				}
			}
		}
		level = next
	}
	return height, nil
}

func getPanel(ctx context.Context, tx ports.Store, id string) (*domain.DistributionPanel, error) {
	n, err := tx.Topology().Get(ctx, domain.KindPanel, id)
	if err != nil || n == nil {
		return nil, err
	}
	return n.(*domain.DistributionPanel), nil
}
