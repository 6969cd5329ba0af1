package clinical

// HL7 table 0078, the abnormal flag codes seen from Brazilian HIS vendors.
var abnormalFlagLabels = map[string]string{
	"H":  "high",
	"L":  "low",
	"HH": "critically high",
	"LL": "critically low",
	"A":  "abnormal",
	"AA": "critically abnormal",
	"N":  "normal",
	"S":  "susceptible",
	"R":  "resistant",
	"I":  "intermediate",
}

// HL7 table 0085, observation result status.
var resultStatusLabels = map[string]string{
	"F": "final",
	"P": "preliminary",
	"C": "corrected",
	"X": "cancelled",
	"I": "pending",
	"R": "entered, not verified",
	"S": "partial",
	"D": "deleted",
	"U": "status changed to final",
	"W": "original wrong",
}

// HL7 table 0119, order control codes used by ORM senders.
var orderControlLabels = map[string]string{
	"NW": "new order",
	"CA": "cancel order",
	"XO": "change order",
	"DC": "discontinue order",
	"HD": "hold order",
	"RL": "release hold",
	"OC": "order cancelled",
	"SC": "status changed",
	"RE": "observations to follow",
}

// lookupCoded resolves a code against a fixed table. Unknown codes are kept
// verbatim with a generic label so vendor extensions survive extraction.
func lookupCoded(table map[string]string, code string) CodedValue {
	if label, ok := table[code]; ok {
		return CodedValue{Code: code, Label: label}
	}
	return CodedValue{Code: code, Label: "unknown"}
}

// AbnormalFlag resolves an OBX-8 code.
func AbnormalFlag(code string) CodedValue {
	return lookupCoded(abnormalFlagLabels, code)
}

// ResultStatus resolves an OBX-11/OBR-25 code.
func ResultStatus(code string) CodedValue {
	return lookupCoded(resultStatusLabels, code)
}

// OrderControl resolves an ORC-1 code.
func OrderControl(code string) CodedValue {
	return lookupCoded(orderControlLabels, code)
}
