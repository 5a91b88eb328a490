package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/wydcore/server/internal/combat"
	"github.com/wydcore/server/internal/dispatch"
	"github.com/wydcore/server/internal/eventbus"
	"github.com/wydcore/server/internal/item"
	"github.com/wydcore/server/internal/pool"
	"github.com/wydcore/server/internal/protocol"
	"github.com/wydcore/server/internal/repository"
	"github.com/wydcore/server/internal/session"
)

// deps bundles the collaborators the recognized command table dispatches
// into. A real deployment has a world layer behind combat's
// AttributeProvider/EffectSink; here the engine runs against
// combat.MapWorld, seeded with a placeholder attribute snapshot the
// moment a session authenticates, so attack/skill commands have
// something real to resolve against end to end.
type deps struct {
	repo    *repository.Repository
	bus     *eventbus.Bus
	peers   *pool.Pool
	catalog *item.Catalog
	engine  *combat.Engine
	world   *combat.MapWorld
}

func registerHandlers(d *dispatch.Dispatcher, dep deps) {
	d.Register(protocol.CmdAuthLoginRequest, dep.handleLogin, false, false)
	d.Register(protocol.CmdSystemPing, dep.handlePing, false, false)
	d.Register(protocol.CmdSystemEnterWorld, dep.handleEnterWorld, true, false)
	d.Register(protocol.CmdCombatAttack, dep.handleAttack, true, false)
	d.Register(protocol.CmdCombatSkill, dep.handleSkill, true, false)
	d.Register(protocol.CmdItemUse, dep.handleItemUse, true, false)
	d.Register(protocol.CmdShopBuy, dep.handleShopBuy, true, false)

	// Per-command rate limits (spec §4.5) for the commands a client can
	// spam fastest to meaningful effect; everything else relies on the
	// dispatcher's global per-session cap alone.
	setRateLimit(d, protocol.CmdCombatAttack, 600, 20)
	setRateLimit(d, protocol.CmdCombatSkill, 300, 10)
	setRateLimit(d, protocol.CmdItemUse, 300, 10)
}

func setRateLimit(d *dispatch.Dispatcher, cmd uint16, perMinute, burst int) {
	if err := d.SetRateLimit(cmd, perMinute, burst); err != nil {
		slog.Error("coreserver: rate limit config rejected", "command", cmd, "error", err)
	}
}

// handleLogin reads a fixed 32+32 null-padded login/password pair and
// authenticates against the repository, matching the login-boundary
// contract SPEC_FULL.md assigns to the core server (spec §1: "the rest
// of the auth subsystem stays an external collaborator" — this handler
// is the one place this server itself checks credentials).
func (dp deps) handleLogin(s *session.Session, payload []byte) error {
	if len(payload) < 64 {
		return dispatch.ErrSizeOutOfBounds
	}
	login := trimNull(payload[0:32])
	password := trimNull(payload[32:64])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accountID, _, err := dp.repo.Authenticate(ctx, login, password)
	if err != nil {
		slog.Warn("login rejected", "session", s.ID(), "login", login)
		resp := make([]byte, protocol.HeaderSize+1)
		n, encErr := protocol.Encode(resp, protocol.CmdAuthLoginResponse, 0, []byte{0}, s.SendRing())
		if encErr == nil {
			s.Enqueue(resp[:n])
		}
		return nil
	}

	s.Authenticate(accountID)
	resp := make([]byte, protocol.HeaderSize+1)
	n, err := protocol.Encode(resp, protocol.CmdAuthLoginResponse, 0, []byte{1}, s.SendRing())
	if err != nil {
		return err
	}
	return s.Enqueue(resp[:n])
}

func (dp deps) handlePing(s *session.Session, payload []byte) error {
	resp := make([]byte, protocol.HeaderSize)
	n, err := protocol.Encode(resp, protocol.CmdSystemPing, 0, nil, s.SendRing())
	if err != nil {
		return err
	}
	return s.Enqueue(resp[:n])
}

// handleEnterWorld gives the authenticated session's character a combat
// presence: an EntityId derived from the session id and a baseline
// attribute snapshot in the in-memory world adapter.
func (dp deps) handleEnterWorld(s *session.Session, payload []byte) error {
	id := combat.EntityId(s.ID())
	dp.world.Set(id, combat.Attributes{
		STR: 40, INT: 40, DEX: 40, CON: 40,
		PhysAtkMin: 50, PhysAtkMax: 80,
		PhysDef: 30, MagDef: 30,
		AttackRating: 60, Evasion: 20,
		CritChance: 5, CritDamage: 150,
		MaxHP: 1000, CurrentHP: 1000, CurrentMP: 300,
		Alive: true,
		Resist: map[combat.ElementType]int{},
	})
	return nil
}

// handleAttack expects an 8-byte target EntityId followed by a 4-byte
// skill id (0 = basic attack, matching BattleResult.SkillID's documented
// meaning) and resolves it through the combat engine. A non-zero skill id
// is looked up in the engine's skill table and driven through the same
// damage/heal path a CmdCombatSkill cast uses.
func (dp deps) handleAttack(s *session.Session, payload []byte) error {
	if len(payload) < 12 {
		return dispatch.ErrSizeOutOfBounds
	}
	targetID := combat.EntityId(binary.LittleEndian.Uint64(payload[0:8]))
	skillID := int32(binary.LittleEndian.Uint32(payload[8:12]))
	attackerID := combat.EntityId(s.ID())

	result, err := dp.engine.ProcessAttack(attackerID, targetID, skillID)
	if err != nil {
		return err
	}
	return dp.sendCombatResult(s, result)
}

// handleSkill expects an 8-byte target EntityId followed by a 4-byte
// skill id. The id is not looked up in any skill table: the handler casts
// a fixed placeholder physical skill (base 20, +5 per level, 90% success,
// enemy-targeted) that carries the received id, at level 1.
func (dp deps) handleSkill(s *session.Session, payload []byte) error {
	if len(payload) < 12 {
		return dispatch.ErrSizeOutOfBounds
	}
	targetID := combat.EntityId(binary.LittleEndian.Uint64(payload[0:8]))
	skillID := int32(binary.LittleEndian.Uint32(payload[8:12]))

	skill := combat.Skill{ID: skillID, DamageType: combat.DamagePhysical, DamageBase: 20, DamagePerLevel: 5, SuccessRate: 90, TargetType: combat.TargetEnemy}
	results, err := dp.engine.ProcessSkill(combat.EntityId(s.ID()), []combat.EntityId{targetID}, skill, 1)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := dp.sendCombatResult(s, r); err != nil {
			return err
		}
	}
	return nil
}

func (dp deps) sendCombatResult(s *session.Session, result combat.BattleResult) error {
	body := make([]byte, 16)
	binary.LittleEndian.PutUint64(body[0:8], uint64(result.TargetID))
	binary.LittleEndian.PutUint64(body[8:16], uint64(int64(result.Damage)))

	resp := make([]byte, protocol.HeaderSize+len(body))
	n, err := protocol.Encode(resp, protocol.CmdCombatResult, 0, body, s.SendRing())
	if err != nil {
		return err
	}
	dp.bus.Publish("combat.result", result)
	return s.Enqueue(resp[:n])
}

// handleItemUse expects a 2-byte catalogue id, looks it up, and logs
// unknown ids through the catalogue's own reporting path rather than
// failing the command.
func (dp deps) handleItemUse(s *session.Session, payload []byte) error {
	if len(payload) < 2 {
		return dispatch.ErrSizeOutOfBounds
	}
	id := binary.LittleEndian.Uint16(payload[0:2])
	if _, ok := dp.catalog.Entry(id); !ok {
		item.Warn(id)
		return nil
	}
	dp.bus.Publish("item.used", id)
	return nil
}

// handleShopBuy prices the requested catalogue entry and publishes the
// purchase as an event rather than mutating inventory state directly —
// inventory/currency persistence is the repository's concern, reached
// through a real subsystem this handler only notifies.
func (dp deps) handleShopBuy(s *session.Session, payload []byte) error {
	if len(payload) < 2 {
		return dispatch.ErrSizeOutOfBounds
	}
	id := binary.LittleEndian.Uint16(payload[0:2])
	if _, ok := dp.catalog.Entry(id); !ok {
		item.Warn(id)
		return nil
	}
	it := item.NewItem(dp.catalog, id, 1, 0, false, 0)
	price := item.Price(dp.catalog, it, false)
	dp.bus.Publish("shop.purchase", price)
	return nil
}

func trimNull(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
