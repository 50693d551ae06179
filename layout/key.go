// Package layout defines logical keys, the textual token vocabulary used to
// describe keymaps, and the validated (layer, cell) -> key table the resolver
// reads from.
package layout

import (
	"fmt"

	"github.com/necocen/necoboard/hid"
)

// LayerID identifies a layer of a Table. Layer 0 is the base layer.
type LayerID uint8

// Base is the resolution floor; it is always active.
const Base LayerID = 0

// Kind tags the variant held by a Key.
type Kind uint8

const (
	KindNone Kind = iota
	KindBasic
	KindModifier
	KindLayerHold
	KindLayerToggle
	KindTransparent
	KindMedia
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBasic:
		return "basic"
	case KindModifier:
		return "modifier"
	case KindLayerHold:
		return "layer-hold"
	case KindLayerToggle:
		return "layer-toggle"
	case KindTransparent:
		return "transparent"
	case KindMedia:
		return "media"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Key is a logical key. Only the fields relevant to Kind are set:
// Code is the keyboard-page usage for basic and modifier keys and the
// consumer-page usage for media keys, Mods are the implicit modifiers of a
// basic key, and Layer is the target of layer keys.
type Key struct {
	Kind  Kind
	Code  uint16
	Mods  uint8
	Layer LayerID
}

// None is a key that does nothing.
func None() Key { return Key{Kind: KindNone} }

// Transparent defers to the layer below.
func Transparent() Key { return Key{Kind: KindTransparent} }

// Basic is a plain keyboard-page key.
func Basic(usage uint8) Key { return Key{Kind: KindBasic, Code: uint16(usage)} }

// Shifted is a keyboard-page key sent with left shift held.
func Shifted(usage uint8) Key {
	return Key{Kind: KindBasic, Code: uint16(usage), Mods: hid.ModLeftShift}
}

// Modifier is a modifier key identified by its usage (0xE0-0xE7).
func Modifier(usage uint8) Key { return Key{Kind: KindModifier, Code: uint16(usage)} }

// Hold activates a layer while held.
func Hold(l LayerID) Key { return Key{Kind: KindLayerHold, Layer: l} }

// Toggle flips a layer on or off on press.
func Toggle(l LayerID) Key { return Key{Kind: KindLayerToggle, Layer: l} }

// Media is a consumer-page key.
func Media(usage uint16) Key { return Key{Kind: KindMedia, Code: usage} }

// IsTransparent reports whether the key defers to the layer below.
func (k Key) IsTransparent() bool { return k.Kind == KindTransparent }

// IsLayerKey reports whether the key changes layer state instead of being
// reported to the host.
func (k Key) IsLayerKey() bool {
	return k.Kind == KindLayerHold || k.Kind == KindLayerToggle
}

// Usage returns the keyboard-page usage of basic and modifier keys.
func (k Key) Usage() uint8 {
	if k.Kind != KindBasic && k.Kind != KindModifier {
		return 0
	}
	return uint8(k.Code)
}

// ModifierBits returns the modifier-byte bits this key contributes while held.
func (k Key) ModifierBits() uint8 {
	switch k.Kind {
	case KindModifier:
		return hid.ModifierBit(uint8(k.Code))
	case KindBasic:
		return k.Mods
	default:
		return 0
	}
}

func (k Key) String() string {
	switch k.Kind {
	case KindNone:
		return "No"
	case KindTransparent:
		return "Trn"
	case KindBasic, KindModifier:
		if tok, ok := staticToken(k); ok {
			return tok
		}
		if k.Mods != 0 {
			return fmt.Sprintf("Mods(0x%02X)+%s", k.Mods, hid.KeyName(uint8(k.Code)))
		}
		return hid.KeyName(uint8(k.Code))
	case KindMedia:
		if tok, ok := staticToken(k); ok {
			return tok
		}
		return hid.ConsumerName(k.Code)
	case KindLayerHold:
		return fmt.Sprintf("Hold(%d)", k.Layer)
	case KindLayerToggle:
		return fmt.Sprintf("TG(%d)", k.Layer)
	default:
		return k.Kind.String()
	}
}
