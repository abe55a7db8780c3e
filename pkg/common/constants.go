package common

// Core SNOMED CT concepts and attributes used to define products.
const (
	IsA                     = "116680003"
	MedicinalProduct        = "763158003"
	MedicinalProductPackage = "781405001"
	ProductName             = "774167006"
	RoleGroup               = "609096000"

	HasActiveIngredient             = "127489000"
	HasPreciseActiveIngredient      = "762949000"
	HasBasisOfStrengthSubstance     = "732943007"
	HasManufacturedDoseForm         = "411116001"
	HasUnitOfPresentation           = "763032000"
	HasProductName                  = "774158006"
	CountOfBaseOfActiveIngredient   = "1142139005"
	HasPresentationNumeratorValue   = "1142135004"
	HasPresentationNumeratorUnit    = "732945000"
	HasPresentationDenominatorValue = "1142136003"
	HasPresentationDenominatorUnit  = "732947008"
	ContainsClinicalDrug            = "774160008"
	HasPackSizeValue                = "1142142004"
	HasPackSizeUnit                 = "774163005"
	CountOfContainedPackageType     = "1142143009"
)

// Australian extension attributes.
const (
	HasContainerType               = "30465011000036106"
	HasDeviceType                  = "999000061000168105"
	ContainsPackagedClinicalDrug   = "999000011000168107"
	HasOtherIdentifyingInformation = "999000001000168109"
	HasConcentrationStrengthValue  = "999000021000168100"
	HasConcentrationStrengthUnit   = "999000031000168102"
)

// Units.
const (
	UnitEach = "732935002"
)

// Reference sets each hierarchy level must be a member of.
const (
	MPRefset   = "929360061000036106"
	MPUURefset = "929360071000036103"
	MPPRefset  = "929360081000036101"
	TPRefset   = "929360021000036102"
	TPUURefset = "929360031000036100"
	TPPRefset  = "929360041000036105"
	CTPPRefset = "929360051000036108"
)

// DefaultModuleID is the module new concepts are authored in when none is configured.
const DefaultModuleID = "32506021000036107"

// Semantic tags of generated names.
const (
	TagMedicinalProduct      = "medicinal product"
	TagClinicalDrug          = "clinical drug"
	TagBrandedClinicalDrug   = "branded clinical drug"
	TagMedicinalProductPack  = "medicinal product pack"
	TagTradeProductPack      = "trade product pack"
	TagContaineredTradePack  = "containered trade product pack"
	TagProductName           = "product name"
	TagPhysicalObject        = "physical object"
	TagBrandedPhysicalObject = "branded physical object"
)

// NegatableAttributes are asserted absent ([0..0]) in closed-world lookups
// when the candidate set does not mention them.
var NegatableAttributes = []string{
	HasActiveIngredient,
	HasPreciseActiveIngredient,
	HasBasisOfStrengthSubstance,
	HasManufacturedDoseForm,
	HasUnitOfPresentation,
	CountOfBaseOfActiveIngredient,
	HasProductName,
	HasContainerType,
	HasDeviceType,
	ContainsClinicalDrug,
	ContainsPackagedClinicalDrug,
}
