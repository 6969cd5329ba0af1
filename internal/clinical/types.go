// Package clinical maps generic HL7 messages to typed clinical records.
// Extractors never mutate the source message; the records they return are
// handed to the ingestion collaborator and not touched again.
package clinical

import "time"

// Gender is the PID-8 administrative sex, constrained to the HL7 table
// values with "U" as the fallback for anything unrecognized.
type Gender string

const (
	GenderMale      Gender = "M"
	GenderFemale    Gender = "F"
	GenderOther     Gender = "O"
	GenderAmbiguous Gender = "A"
	GenderNotApplic Gender = "N"
	GenderUnknown   Gender = "U"
)

// ParseGender normalizes a raw PID-8 value.
func ParseGender(value string) Gender {
	switch Gender(value) {
	case GenderMale, GenderFemale, GenderOther, GenderAmbiguous, GenderNotApplic, GenderUnknown:
		return Gender(value)
	}
	return GenderUnknown
}

// IDValidation is the outcome of running a national identifier through its
// checksum validator. The value is kept even when invalid so downstream
// systems can surface the problem instead of silently dropping the id.
type IDValidation struct {
	Value  string `json:"value"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// PersonName is the XPN family name plus ordered given names.
type PersonName struct {
	Family string   `json:"family"`
	Given  []string `json:"given,omitempty"`
}

// Address is the XAD shape reduced to what the platform consumes.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Patient is the typed record produced by the ADT extractor from one
// message.
type Patient struct {
	ID        string        `json:"id"`
	Name      PersonName    `json:"name"`
	BirthDate string        `json:"birthDate,omitempty"` // ISO date, or raw value when undecodable
	Gender    Gender        `json:"gender"`
	Address   Address       `json:"address,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	CPF       *IDValidation `json:"cpf,omitempty"`
	CNS       *IDValidation `json:"cns,omitempty"`
}

// Location is the PV1-3 assigned patient location.
type Location struct {
	Facility string `json:"facility,omitempty"`
	Room     string `json:"room,omitempty"`
	Bed      string `json:"bed,omitempty"`
	Building string `json:"building,omitempty"`
	Floor    string `json:"floor,omitempty"`
}

// Visit is the PV1 patient visit. Optional on ADT messages.
type Visit struct {
	ID              string     `json:"id,omitempty"`
	Class           string     `json:"class,omitempty"`
	Location        Location   `json:"location,omitempty"`
	AttendingDoctor PersonName `json:"attendingDoctor,omitempty"`
	AdmitTime       *time.Time `json:"admitTime,omitempty"`
	DischargeTime   *time.Time `json:"dischargeTime,omitempty"`
}

// Insurance is the IN1 coverage information. Optional on ADT messages.
type Insurance struct {
	Plan         string `json:"plan,omitempty"`
	Company      string `json:"company,omitempty"`
	PolicyNumber string `json:"policyNumber,omitempty"`
	GroupNumber  string `json:"groupNumber,omitempty"`
}

// AdmissionEvent is the full result of extracting one ADT message.
type AdmissionEvent struct {
	Trigger   string     `json:"trigger"` // A01, A03, A08...
	Patient   Patient    `json:"patient"`
	Visit     *Visit     `json:"visit,omitempty"`
	Insurance *Insurance `json:"insurance,omitempty"`
}

// CodedValue is a code plus a human label, used wherever fixed HL7 tables
// apply. Unknown codes keep their verbatim code with an "unknown" label.
type CodedValue struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// EncapsulatedData is a decoded OBX ED value.
type EncapsulatedData struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
	IsPDF    bool   `json:"isPdf"`
	IsBase64 bool   `json:"isBase64"`
}

// ObservationValue holds exactly one of the decoded OBX-5 shapes. Numeric
// is only set when the declared value type is NM and the text parses; on
// parse failure Text keeps the raw value instead of a silent zero.
type ObservationValue struct {
	Numeric      *float64          `json:"numeric,omitempty"`
	Text         string            `json:"text,omitempty"`
	Encapsulated *EncapsulatedData `json:"encapsulated,omitempty"`
}

// Observation is one OBX segment of a result message.
type Observation struct {
	ID             string           `json:"id"`
	ValueType      string           `json:"valueType"`
	Identifier     CodedValue       `json:"identifier"`
	Value          ObservationValue `json:"value"`
	Units          string           `json:"units,omitempty"`
	ReferenceRange string           `json:"referenceRange,omitempty"`
	AbnormalFlags  []CodedValue     `json:"abnormalFlags,omitempty"`
	Status         CodedValue       `json:"status"`
	Timestamp      *time.Time       `json:"timestamp,omitempty"`
}

// DiagnosticReport is the typed record produced by the ORU extractor: one
// OBR header followed by its ordered observations.
type DiagnosticReport struct {
	ID           string        `json:"id"`
	OrderNumber  string        `json:"orderNumber,omitempty"`
	ServiceCode  CodedValue    `json:"serviceCode"`
	ObservedAt   *time.Time    `json:"observedAt,omitempty"`
	ResultStatus CodedValue    `json:"resultStatus"`
	Patient      *Patient      `json:"patient,omitempty"`
	Observations []Observation `json:"observations"`
}

// Order is the typed record produced by the ORM extractor from ORC/OBR.
type Order struct {
	ControlCode      CodedValue `json:"controlCode"`
	PlacerOrder      string     `json:"placerOrder,omitempty"`
	FillerOrder      string     `json:"fillerOrder,omitempty"`
	Procedure        CodedValue `json:"procedure"`
	RequestedAt      *time.Time `json:"requestedAt,omitempty"`
	OrderingProvider PersonName `json:"orderingProvider,omitempty"`
	Patient          *Patient   `json:"patient,omitempty"`
}
