package models

import "strings"

// Sleep field names as stored on the sleep measurement. Durations are minutes.
const (
	SleepFieldCore  = "core"
	SleepFieldDeep  = "deep"
	SleepFieldREM   = "rem"
	SleepFieldAwake = "awake"
	SleepFieldInBed = "in_bed"
	SleepFieldTotal = "total"
)

// SleepFields lists every sleep field in a stable order.
var SleepFields = []string{
	SleepFieldDeep, SleepFieldREM, SleepFieldCore, SleepFieldAwake, SleepFieldInBed, SleepFieldTotal,
}

// sleepStageMap maps lowercased localized sleep stage names, as they appear in
// per-segment exports, to sleep field names. Covers: English, German, French, Spanish, Italian,
// Portuguese, Dutch, Japanese, Chinese (Simplified & Traditional), Korean.
var sleepStageMap = map[string]string{
	// English
	"core":   SleepFieldCore,
	"deep":   SleepFieldDeep,
	"rem":    SleepFieldREM,
	"awake":  SleepFieldAwake,
	"in bed": SleepFieldInBed,
	"inbed":  SleepFieldInBed,
	"asleep": SleepFieldTotal,

	// German
	"kern":    SleepFieldCore,
	"tief":    SleepFieldDeep,
	"wach":    SleepFieldAwake,
	"im bett": SleepFieldInBed,

	// French
	"paradoxal": SleepFieldREM,
	"profond":   SleepFieldDeep,
	"léger":     SleepFieldCore,
	"leger":     SleepFieldCore,
	"éveillé":   SleepFieldAwake,
	"eveille":   SleepFieldAwake,
	"au lit":    SleepFieldInBed,
	"endormi":   SleepFieldTotal,

	// Spanish (principal also covers Portuguese)
	"profundo":   SleepFieldDeep,
	"principal":  SleepFieldCore,
	"despierto":  SleepFieldAwake,
	"despierta":  SleepFieldAwake,
	"en la cama": SleepFieldInBed,
	"dormido":    SleepFieldTotal,
	"dormida":    SleepFieldTotal,

	// Italian
	"profondo":     SleepFieldDeep,
	"essenziale":   SleepFieldCore,
	"sveglio":      SleepFieldAwake,
	"sveglia":      SleepFieldAwake,
	"a letto":      SleepFieldInBed,
	"addormentato": SleepFieldTotal,

	// Portuguese (principal already covered by Spanish, kern by German)
	"sono profundo": SleepFieldDeep,
	"acordado":      SleepFieldAwake,
	"acordada":      SleepFieldAwake,
	"na cama":       SleepFieldInBed,
	"dormindo":      SleepFieldTotal,

	// Dutch (kern already covered by German, in bed by English)
	"diep":    SleepFieldDeep,
	"wakker":  SleepFieldAwake,
	"slapend": SleepFieldTotal,

	// Japanese
	"コア":   SleepFieldCore,
	"深い":   SleepFieldDeep,
	"レム":   SleepFieldREM,
	"覚醒":   SleepFieldAwake,
	"ベッドで": SleepFieldInBed,

	// Chinese (Simplified)
	"核心":   SleepFieldCore,
	"深度":   SleepFieldDeep,
	"快速眼动": SleepFieldREM,
	"清醒":   SleepFieldAwake,
	"在床上":  SleepFieldInBed,

	// Chinese (Traditional)
	"核心睡眠": SleepFieldCore,
	"深層":   SleepFieldDeep,
	"快速動眼": SleepFieldREM,

	// Korean
	"코어":   SleepFieldCore,
	"깊은":   SleepFieldDeep,
	"렘":    SleepFieldREM,
	"깨어있음": SleepFieldAwake,
	"침대에서": SleepFieldInBed,
}

// NormalizeSleepStage maps a possibly-localized sleep stage name to its
// sleep field name. Unknown names come back unchanged with false.
func NormalizeSleepStage(raw string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if field, ok := sleepStageMap[lower]; ok {
		return field, true
	}
	return raw, false
}
