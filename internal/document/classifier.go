package document

import "strings"

type keywordRule struct {
	docType  Type
	keywords []string
}

// Rules are checked in order, the first hit wins. Text reports come last because
// every imaging printout also tends to contain words like "patient".
var keywordRules = []keywordRule{
	{TypeXRay, []string{"x-ray", "xray", "radiograph"}},
	{TypeMRI, []string{"mri", "magnetic resonance"}},
	{TypeCT, []string{"ct scan", "computed tomography"}},
	{TypeECG, []string{"ecg", "ekg", "electrocardiogram"}},
	{TypeUltrasound, []string{"ultrasound", "sonograph", "sonography"}},
	{TypeTextReport, []string{"report", "diagnosis", "impression", "findings", "patient"}},
}

// DetectType classifies a document by keyword search over its OCR text
func DetectType(text string) Type {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.docType
			}
		}
	}
	return TypeUnknown
}
