package bridge

import (
	"github.com/pkg/errors"

	"github.com/rigado/bthal/linux/mgmt"
)

func (b *Bridge) handleCommandComplete(p mgmt.Packet) error {
	e := mgmt.CommandComplete(p.Params)
	if !e.Valid() {
		return errors.Errorf("invalid command complete: % X", p.Params)
	}
	params := make([]byte, len(e.ReturnParameters()))
	copy(params, e.ReturnParameters())
	return b.resolve(e.CommandOpcode(), p.Index, result{status: e.Status(), params: params})
}

func (b *Bridge) handleCommandStatus(p mgmt.Packet) error {
	e := mgmt.CommandStatus(p.Params)
	if !e.Valid() {
		return errors.Errorf("invalid command status: % X", p.Params)
	}
	return b.resolve(e.CommandOpcode(), p.Index, result{status: e.Status()})
}

func (b *Bridge) handleControllerError(p mgmt.Packet) error {
	e := mgmt.ControllerError(p.Params)
	if !e.Valid() {
		return errors.Errorf("invalid controller error: % X", p.Params)
	}
	b.logger.Warnf("controller %d error 0x%02x", p.Index, e.ErrorCode())
	return nil
}

func (b *Bridge) handleIndexAdded(p mgmt.Packet) error {
	b.logger.Debugf("controller %d added", p.Index)
	return nil
}

func (b *Bridge) handleIndexRemoved(p mgmt.Packet) error {
	if p.Index != b.index {
		return nil
	}
	b.logger.Warnf("controller %d removed", p.Index)
	return nil
}

func (b *Bridge) handleNewSettings(p mgmt.Packet) error {
	if p.Index != b.index {
		return nil
	}
	e := mgmt.NewSettings(p.Params)
	if !e.Valid() {
		return errors.Errorf("invalid new settings: % X", p.Params)
	}
	b.logger.Debugf("new settings 0x%08x", e.Settings())
	b.adapter.UpdateSettings(e.Settings())
	return nil
}

func (b *Bridge) handleClassOfDevChanged(p mgmt.Packet) error {
	if p.Index != b.index {
		return nil
	}
	e := mgmt.ClassOfDevChanged(p.Params)
	if !e.Valid() {
		return errors.Errorf("invalid class of device changed: % X", p.Params)
	}
	b.adapter.UpdateClass(e.Class())
	return nil
}

func (b *Bridge) handleLocalNameChanged(p mgmt.Packet) error {
	if p.Index != b.index {
		return nil
	}
	e := mgmt.LocalNameChanged(p.Params)
	if !e.Valid() {
		return errors.Errorf("invalid local name changed: % X", p.Params)
	}
	b.adapter.UpdateName(e.Name(), e.ShortName())
	return nil
}
