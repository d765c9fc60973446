package domain

// Pathologies is the fixed label set of the densenet121-res224-all chest
// X-ray model. Every Result.Output carries exactly these 18 keys.
var Pathologies = []string{
	"Atelectasis",
	"Cardiomegaly",
	"Consolidation",
	"Edema",
	"Effusion",
	"Emphysema",
	"Enlarged Cardiomediastinum",
	"Fibrosis",
	"Fracture",
	"Hernia",
	"Infiltration",
	"Lung Lesion",
	"Lung Opacity",
	"Mass",
	"Nodule",
	"Pleural_Thickening",
	"Pneumonia",
	"Pneumothorax",
}
