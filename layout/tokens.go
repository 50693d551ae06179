package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/necocen/necoboard/hid"
)

// Token errors.
var (
	ErrEmptyToken   = errors.New("empty key token")
	ErrUnknownToken = errors.New("unknown key token")
	ErrUnknownLayer = errors.New("unknown layer in key token")
)

type tokenDef struct {
	token string
	key   Key
}

// tokenDefs is the static vocabulary. When two tokens map to the same key the
// first one is the canonical spelling used for display.
var tokenDefs = []tokenDef{
	{"Trn", Transparent()},
	{"No", None()},

	// Letters
	{"A", Basic(hid.KeyA)}, {"B", Basic(hid.KeyB)}, {"C", Basic(hid.KeyC)}, {"D", Basic(hid.KeyD)},
	{"E", Basic(hid.KeyE)}, {"F", Basic(hid.KeyF)}, {"G", Basic(hid.KeyG)}, {"H", Basic(hid.KeyH)},
	{"I", Basic(hid.KeyI)}, {"J", Basic(hid.KeyJ)}, {"K", Basic(hid.KeyK)}, {"L", Basic(hid.KeyL)},
	{"M", Basic(hid.KeyM)}, {"N", Basic(hid.KeyN)}, {"O", Basic(hid.KeyO)}, {"P", Basic(hid.KeyP)},
	{"Q", Basic(hid.KeyQ)}, {"R", Basic(hid.KeyR)}, {"S", Basic(hid.KeyS)}, {"T", Basic(hid.KeyT)},
	{"U", Basic(hid.KeyU)}, {"V", Basic(hid.KeyV)}, {"W", Basic(hid.KeyW)}, {"X", Basic(hid.KeyX)},
	{"Y", Basic(hid.KeyY)}, {"Z", Basic(hid.KeyZ)},

	// Digits
	{"1", Basic(hid.Key1)}, {"2", Basic(hid.Key2)}, {"3", Basic(hid.Key3)}, {"4", Basic(hid.Key4)},
	{"5", Basic(hid.Key5)}, {"6", Basic(hid.Key6)}, {"7", Basic(hid.Key7)}, {"8", Basic(hid.Key8)},
	{"9", Basic(hid.Key9)}, {"0", Basic(hid.Key0)},

	// Editing and whitespace
	{"Esc", Basic(hid.KeyEscape)},
	{"Tab", Basic(hid.KeyTab)},
	{"Ent", Basic(hid.KeyEnter)},
	{"Spc", Basic(hid.KeySpace)},
	{"BSpc", Basic(hid.KeyBackspace)},
	{"Del", Basic(hid.KeyDelete)},
	{"Ins", Basic(hid.KeyInsert)},
	{"Caps", Basic(hid.KeyCapsLock)},
	{"PScr", Basic(hid.KeyPrintScreen)},
	{"App", Basic(hid.KeyApplication)},

	// Punctuation
	{"Mins", Basic(hid.KeyMinus)},
	{"Eql", Basic(hid.KeyEqual)},
	{"LBrc", Basic(hid.KeyLeftBrace)},
	{"RBrc", Basic(hid.KeyRightBrace)},
	{"Bsls", Basic(hid.KeyBackslash)},
	{"Scln", Basic(hid.KeySemicolon)},
	{"Quot", Basic(hid.KeyApostrophe)},
	{"Grv", Basic(hid.KeyGrave)},
	{"Comm", Basic(hid.KeyComma)},
	{"Dot", Basic(hid.KeyPeriod)},
	{"Slsh", Basic(hid.KeySlash)},

	// Shifted symbols
	{"Excl", Shifted(hid.Key1)},
	{"At", Shifted(hid.Key2)},
	{"Hash", Shifted(hid.Key3)},
	{"Dlr", Shifted(hid.Key4)},
	{"Perc", Shifted(hid.Key5)},
	{"Circ", Shifted(hid.Key6)},
	{"Amp", Shifted(hid.Key7)},
	{"Astr", Shifted(hid.Key8)},
	{"LPrn", Shifted(hid.Key9)},
	{"RPrn", Shifted(hid.Key0)},
	{"Unds", Shifted(hid.KeyMinus)},
	{"Plus", Shifted(hid.KeyEqual)},
	{"LCbr", Shifted(hid.KeyLeftBrace)},
	{"RCbr", Shifted(hid.KeyRightBrace)},
	{"Pipe", Shifted(hid.KeyBackslash)},
	{"Coln", Shifted(hid.KeySemicolon)},
	{"DQuo", Shifted(hid.KeyApostrophe)},
	{"Tild", Shifted(hid.KeyGrave)},
	{"Lt", Shifted(hid.KeyComma)},
	{"Gt", Shifted(hid.KeyPeriod)},
	{"Ques", Shifted(hid.KeySlash)},

	// Navigation
	{"Up", Basic(hid.KeyUp)},
	{"Down", Basic(hid.KeyDown)},
	{"Left", Basic(hid.KeyLeft)},
	{"Rght", Basic(hid.KeyRight)},
	{"Home", Basic(hid.KeyHome)},
	{"End", Basic(hid.KeyEnd)},
	{"PgUp", Basic(hid.KeyPageUp)},
	{"PgDn", Basic(hid.KeyPageDown)},

	// Function keys
	{"F1", Basic(hid.KeyF1)}, {"F2", Basic(hid.KeyF2)}, {"F3", Basic(hid.KeyF3)}, {"F4", Basic(hid.KeyF4)},
	{"F5", Basic(hid.KeyF5)}, {"F6", Basic(hid.KeyF6)}, {"F7", Basic(hid.KeyF7)}, {"F8", Basic(hid.KeyF8)},
	{"F9", Basic(hid.KeyF9)}, {"F10", Basic(hid.KeyF10)}, {"F11", Basic(hid.KeyF11)}, {"F12", Basic(hid.KeyF12)},

	// Modifiers
	{"LCtl", Modifier(hid.KeyLeftCtrl)},
	{"LSft", Modifier(hid.KeyLeftShift)},
	{"LAlt", Modifier(hid.KeyLeftAlt)},
	{"LGui", Modifier(hid.KeyLeftGUI)},
	{"RCtl", Modifier(hid.KeyRightCtrl)},
	{"RSft", Modifier(hid.KeyRightShift)},
	{"RAlt", Modifier(hid.KeyRightAlt)},
	{"RGui", Modifier(hid.KeyRightGUI)},

	// Media
	{"MVlUp", Media(hid.ConsumerVolumeUp)},
	{"MVlDn", Media(hid.ConsumerVolumeDown)},
	{"MMute", Media(hid.ConsumerMute)},
	{"MPlay", Media(hid.ConsumerPlayPause)},
	{"MStop", Media(hid.ConsumerStop)},
	{"MNext", Media(hid.ConsumerNextTrack)},
	{"MPrev", Media(hid.ConsumerPrevTrack)},
}

var (
	byToken = map[string]Key{}
	byKey   = map[Key]string{}
)

func init() {
	for _, d := range tokenDefs {
		if _, dup := byToken[d.token]; dup {
			panic("layout: duplicate token " + d.token)
		}
		byToken[d.token] = d.key
		if _, ok := byKey[d.key]; !ok {
			byKey[d.key] = d.token
		}
	}
}

func staticToken(k Key) (string, bool) {
	tok, ok := byKey[k]
	return tok, ok
}

// IsStaticToken reports whether tok belongs to the fixed vocabulary.
func IsStaticToken(tok string) bool {
	_, ok := byToken[tok]
	return ok
}

// ParseToken parses a single key token. Layer tokens are resolved against
// layers, which maps upper-case layer names to their IDs: NAME holds the
// layer and TG(NAME) toggles it.
func ParseToken(tok string, layers map[string]LayerID) (Key, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Key{}, ErrEmptyToken
	}
	if k, ok := byToken[tok]; ok {
		return k, nil
	}
	if strings.HasPrefix(tok, "TG(") && strings.HasSuffix(tok, ")") {
		name := tok[3 : len(tok)-1]
		if id, ok := layers[name]; ok {
			return Toggle(id), nil
		}
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownLayer, tok)
	}
	if id, ok := layers[tok]; ok {
		return Hold(id), nil
	}
	return Key{}, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
}
