package conversation

import "unicode"

// Script is the dominant writing system of a message.
type Script int

const (
	ScriptUnknown Script = iota
	ScriptHangul
	ScriptLatin
	ScriptOther
)

func (s Script) String() string {
	switch s {
	case ScriptHangul:
		return "hangul"
	case ScriptLatin:
		return "latin"
	case ScriptOther:
		return "other"
	default:
		return "unknown"
	}
}

// DetectScript classifies text by its letters. Digits, symbols and emoji are
// ignored; text without letters is ScriptUnknown.
func DetectScript(text string) Script {
	var hangul, latin, other int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.IsLetter(r):
			other++
		}
	}
	total := hangul + latin + other
	switch {
	case total == 0:
		return ScriptUnknown
	case other*2 > total:
		return ScriptOther
	case hangul >= latin:
		return ScriptHangul
	default:
		return ScriptLatin
	}
}

// Unsupported reports whether text is written mostly in a script other than
// Hangul or Latin. Latin-script languages other than English are left to the
// model instruction.
func Unsupported(text string) bool {
	return DetectScript(text) == ScriptOther
}
