package tngl

import "fmt"

// Opcode is one instruction byte of compiled TNGL.
// Values are wire constants: renumbering breaks every deployed device.
type Opcode uint8

const (
	// Also terminates string literals.
	None Opcode = 0

	// Drawings
	DrawingSet    Opcode = 1
	DrawingAdd    Opcode = 2
	DrawingSub    Opcode = 3
	DrawingScale  Opcode = 4
	DrawingFilter Opcode = 5

	// Windows
	WindowSet    Opcode = 6
	WindowAdd    Opcode = 7
	WindowSub    Opcode = 8
	WindowScale  Opcode = 9
	WindowFilter Opcode = 10

	// Sifters
	SifterDevice Opcode = 13
	SifterTangle Opcode = 14
	SifterGroup  Opcode = 15

	// Event handlers
	Interactive  Opcode = 16
	EventCatcher Opcode = 17

	// Definitions
	DefineDevice    Opcode = 24
	DefineTangle    Opcode = 25
	DefineGroup     Opcode = 26
	DefineMarks     Opcode = 27
	DefineVariable  Opcode = 28
	DefineAnimation Opcode = 29

	// Animations
	AnimationNone           Opcode = 32
	AnimationFill           Opcode = 33
	AnimationRainbow        Opcode = 34
	AnimationFade           Opcode = 35
	AnimationProjectile     Opcode = 36
	AnimationLoading        Opcode = 37
	AnimationColorRoll      Opcode = 38
	AnimationColorGradient3 Opcode = 39
	AnimationColorGradient5 Opcode = 40
	AnimationColorGradient2 Opcode = 41
	AnimationColorGradient4 Opcode = 42
	AnimationPlasmaShot     Opcode = 43
	AnimationDefined        Opcode = 127

	// Modifiers
	ModifierBrightness        Opcode = 128
	ModifierTimeline          Opcode = 129
	ModifierFadeIn            Opcode = 130
	ModifierFadeOut           Opcode = 131
	ModifierSwitchColors      Opcode = 132
	ModifierTimeLoop          Opcode = 133
	ModifierTimeScale         Opcode = 134
	ModifierTimeScaleSmoothed Opcode = 135
	ModifierTimeChange        Opcode = 136
	ModifierTimeSet           Opcode = 137

	// Generators
	GeneratorLastEventValue Opcode = 144
	GeneratorSmoothOut      Opcode = 145
	GeneratorLagValue       Opcode = 146
	GeneratorSine           Opcode = 147
	GeneratorSaw            Opcode = 148
	GeneratorTriangle       Opcode = 149
	GeneratorSquare         Opcode = 150
	GeneratorPerlinNoise    Opcode = 151

	// Variable operations
	VariableRead  Opcode = 160
	VariableAdd   Opcode = 161
	VariableSub   Opcode = 162
	VariableMul   Opcode = 163
	VariableDiv   Opcode = 164
	VariableMod   Opcode = 165
	VariableScale Opcode = 166
	VariableMap   Opcode = 167

	// Object references
	ObjectDevice   Opcode = 176
	ObjectTangle   Opcode = 177
	ObjectGroup    Opcode = 178
	ObjectMarks    Opcode = 179
	ObjectNeopixel Opcode = 180
	ObjectPort     Opcode = 181

	// Event operations
	EventSetValue     Opcode = 184
	EventEmitLocal    Opcode = 185
	EventRandomChoice Opcode = 186

	// Literal type tags
	Timestamp  Opcode = 188
	Color      Opcode = 189
	Percentage Opcode = 190
	Label      Opcode = 191
	Pixels     Opcode = 192
	Tuple      Opcode = 193

	// Payload-free constants
	TimestampZero Opcode = 194
	TimestampMax  Opcode = 195
	TimestampMin  Opcode = 196
	ColorWhite    Opcode = 197
	ColorBlack    Opcode = 198

	// Boundaries
	EndOfStatement Opcode = 254
	EndOfTnglBytes Opcode = 255
)

// keywords maps TNGL identifiers to their opcode.
var keywords = map[string]Opcode{
	"setDrawing": DrawingSet,
	"addDrawing": DrawingAdd,
	"subDrawing": DrawingSub,
	"scaDrawing": DrawingScale,
	"filDrawing": DrawingFilter,

	"setWindow": WindowSet,
	"addWindow": WindowAdd,
	"subWindow": WindowSub,
	"scaWindow": WindowScale,
	"filWindow": WindowFilter,

	"siftDevices": SifterDevice,
	"siftTangles": SifterTangle,
	"siftGroups":  SifterGroup,

	"interactive": Interactive,
	"catchEvent":  EventCatcher,

	"defDevice":    DefineDevice,
	"defTangle":    DefineTangle,
	"defGroup":     DefineGroup,
	"defMarks":     DefineMarks,
	"defVariable":  DefineVariable,
	"defAnimation": DefineAnimation,

	"animNone":           AnimationNone,
	"animFill":           AnimationFill,
	"animRainbow":        AnimationRainbow,
	"animFade":           AnimationFade,
	"animProjectile":     AnimationProjectile,
	"animLoadingBar":     AnimationLoading,
	"animColorRoll":      AnimationColorRoll,
	"animColorGradient2": AnimationColorGradient2,
	"animColorGradient3": AnimationColorGradient3,
	"animColorGradient4": AnimationColorGradient4,
	"animColorGradient5": AnimationColorGradient5,
	"animPlasmaShot":     AnimationPlasmaShot,
	"animDefined":        AnimationDefined,

	"modifyBrightness":        ModifierBrightness,
	"modifyTimeline":          ModifierTimeline,
	"modifyFadeIn":            ModifierFadeIn,
	"modifyFadeOut":           ModifierFadeOut,
	"modifyColorSwitch":       ModifierSwitchColors,
	"modifyTimeLoop":          ModifierTimeLoop,
	"modifyTimeScale":         ModifierTimeScale,
	"modifyTimeScaleSmoothed": ModifierTimeScaleSmoothed,
	"modifyTimeChange":        ModifierTimeChange,
	"modifyTimeSet":           ModifierTimeSet,

	"genLastEventParam": GeneratorLastEventValue,
	"genSmoothOut":      GeneratorSmoothOut,
	"genLagValue":       GeneratorLagValue,
	"genSine":           GeneratorSine,
	"genSaw":            GeneratorSaw,
	"genTriangle":       GeneratorTriangle,
	"genSquare":         GeneratorSquare,
	"genPerlinNoise":    GeneratorPerlinNoise,

	"variable":  VariableRead,
	"addValues": VariableAdd,
	"subValues": VariableSub,
	"mulValues": VariableMul,
	"divValues": VariableDiv,
	"modValues": VariableMod,
	"scaValue":  VariableScale,
	"mapValue":  VariableMap,

	"device":   ObjectDevice,
	"tangle":   ObjectTangle,
	"group":    ObjectGroup,
	"marks":    ObjectMarks,
	"neopixel": ObjectNeopixel,
	"port":     ObjectPort,

	"setEventValue":  EventSetValue,
	"emitLocalEvent": EventEmitLocal,
	"randomChoice":   EventRandomChoice,
}

// constantBytes are identifiers compiled to a raw byte without an opcode.
var constantBytes = map[string]byte{
	"true":  0x01,
	"false": 0x00,
}

// Keyword returns the opcode bound to a TNGL identifier.
func Keyword(word string) (Opcode, bool) {
	op, ok := keywords[word]
	return op, ok
}

var opcodeNames = func() map[Opcode]string {
	names := map[Opcode]string{
		None:           "NONE",
		Timestamp:      "TIMESTAMP",
		Color:          "COLOR",
		Percentage:     "PERCENTAGE",
		Label:          "LABEL",
		Pixels:         "PIXELS",
		Tuple:          "TUPLE",
		TimestampZero:  "TIMESTAMP_ZERO",
		TimestampMax:   "TIMESTAMP_MAX",
		TimestampMin:   "TIMESTAMP_MIN",
		ColorWhite:     "COLOR_WHITE",
		ColorBlack:     "COLOR_BLACK",
		EndOfStatement: "END_OF_STATEMENT",
		EndOfTnglBytes: "END_OF_TNGL_BYTES",
	}
	for word, op := range keywords {
		names[op] = word
	}
	return names
}()

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE_%02x", uint8(o))
}
