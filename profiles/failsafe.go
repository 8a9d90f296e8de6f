package profiles

import (
	"github.com/google/uuid"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// The failsafe profile is synthesized in memory and must always be
// loadable: its single script ships embedded in the binary. It paints a
// dim solid red so a box with a broken configuration still shows that
// the daemon is alive.

const failsafeScriptName = "failsafe"

const failsafeScript = `
var color = color_failsafe;

function on_render() {
    var n = canvas_size();
    for (var i = 0; i < n; i++) {
        canvas_set(i, color);
    }
    canvas_submit();
}
`

var failsafeID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// NewFailsafe synthesizes the fixed failsafe profile.
func NewFailsafe() *Profile {
	m := &Manifest{
		Name:       failsafeScriptName,
		Version:    "1.0.0",
		Author:     "The Eruption Development Team",
		ScriptFile: failsafeScriptName + ".js",
		Source:     failsafeScript,
	}
	m.Parameters = []ManifestParameter{
		{
			Name:    "color_failsafe",
			Kind:    KindColor,
			Default: ColorValue(canvas.FromPacked(0xff200000)),
		},
	}

	p := &Profile{
		ID:            failsafeID,
		Name:          "Failsafe",
		Description:   "Fallback profile used when no other profile can be activated",
		ActiveScripts: []string{m.ScriptFile},
		Manifests:     []*Manifest{m},
		Config: map[string]map[string]Value{
			failsafeScriptName: m.Defaults(),
		},
	}
	return p
}

// IsFailsafe reports whether p is the synthesized failsafe profile.
func (p *Profile) IsFailsafe() bool {
	return p != nil && p.ID == failsafeID
}
