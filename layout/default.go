package layout

import "github.com/necocen/necoboard/matrix"

// Layer IDs of the default necoboard layout.
const (
	LayerDefault LayerID = iota
	LayerLower
	LayerRaise
	LayerAdjust
)

// NecoboardDefinition returns the stock necoboard v2 keymap. Lower and Raise
// sit on the right thumb cluster at (3,7) and (3,8). Holding both activates
// the Adjust composite, which carries the Raise grid so Raise wins over Lower
// regardless of which of the two was pressed last.
func NecoboardDefinition() Definition {
	return Definition{
		Grid: matrix.Necoboard,
		Layers: []LayerDef{
			{
				Name: "default",
				Rows: []string{
					"Esc  Q    W    E    R    T    Y     U     I     O     P     Del",
					"LCtl A    S    D    F    G    H     J     K     L     Scln  Quot",
					"LSft Z    X    C    V    B    N     M     Comm  Dot   Slsh  Ent",
					"No   No   Tab  LAlt LGui Spc  No    LOWER RAISE No    No    No",
				},
			},
			{
				Name: "lower",
				Rows: []string{
					"Trn  1    2    3    4    5    6     7     8     9     0     Tab",
					"Trn  Excl At   LPrn RPrn Astr Mins  Eql   LBrc  RBrc  Pipe  Grv",
					"Trn  Perc Circ Hash Dlr  Amp  Unds  Plus  LCbr  RCbr  Bsls  Tild",
					"No   No   No   Trn  Trn  Trn  No    Trn   Trn   Trn   No    No",
				},
			},
			{
				Name: "raise",
				Rows: []string{
					"No   No   No   No   No   No   No    No    No    MVlDn MMute MVlUp",
					"Trn  No   No   No   No   No   No    No    No    No    Up    No",
					"Trn  No   No   No   No   No   MPrev MPlay MNext Left  Down  Rght",
					"No   No   Trn  Trn  Trn  Trn  No    Trn   Trn   Trn   No    No",
				},
			},
		},
		Composites: []CompositeDef{
			{
				Name: "adjust",
				When: []string{"lower", "raise"},
				Rows: []string{
					"No   No   No   No   No   No   No    No    No    MVlDn MMute MVlUp",
					"Trn  No   No   No   No   No   No    No    No    No    Up    No",
					"Trn  No   No   No   No   No   MPrev MPlay MNext Left  Down  Rght",
					"No   No   Trn  Trn  Trn  Trn  No    Trn   Trn   Trn   No    No",
				},
			},
		},
	}
}

// Necoboard returns the built stock layout.
func Necoboard() *Table {
	return MustBuild(NecoboardDefinition())
}
