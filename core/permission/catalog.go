package permission

// Module ids
const (
	ModuleDashboard    = "dashboard"
	ModuleCentreMgmt   = "centre_mgmt"
	ModuleSectionMgmt  = "section_mgmt"
	ModuleTestMgmt     = "test_mgmt"
	ModuleQuestionBank = "question_bank"
	ModuleAdminMgmt    = "admin_mgmt"
)

// Sub-module ids
const (
	// test_mgmt
	SubTestCreate    = "test_create"
	SubTestAllotment = "test_allotment"
	SubTestResponses = "test_responses"
	SubTestResult    = "test_result"

	// admin_mgmt
	SubAdminSystem     = "admin_system"
	SubAdminStudent    = "admin_student"
	SubAdminParent     = "admin_parent"
	SubAdminMasterData = "admin_master_data"
	SubSettings        = "settings"
)

type (
	// ModuleSpec describes one entry of the canonical module catalog.
	ModuleSpec struct {
		ID    string    `json:"id"`
		Label string    `json:"label"`
		Subs  []SubSpec `json:"subs,omitempty"`
	}

	SubSpec struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
)

// IsComposite reports whether the module carries sub-modules.
func (m ModuleSpec) IsComposite() bool { return len(m.Subs) > 0 }

func (m ModuleSpec) hasSub(id string) bool {
	for _, sub := range m.Subs {
		if sub.ID == id {
			return true
		}
	}
	return false
}

var (
	catalog = []ModuleSpec{
		{ID: ModuleDashboard, Label: "Dashboard"},
		{ID: ModuleCentreMgmt, Label: "Centre Management"},
		{ID: ModuleSectionMgmt, Label: "Section Management"},
		{
			ID:    ModuleTestMgmt,
			Label: "Test Management",
			Subs: []SubSpec{
				{ID: SubTestCreate, Label: "Test Create"},
				{ID: SubTestAllotment, Label: "Test Allotment"},
				{ID: SubTestResponses, Label: "Test Responses"},
				{ID: SubTestResult, Label: "Test Result"},
			},
		},
		{ID: ModuleQuestionBank, Label: "Question Bank"},
		{
			ID:    ModuleAdminMgmt,
			Label: "Admin Management",
			Subs: []SubSpec{
				{ID: SubAdminSystem, Label: "System"},
				{ID: SubAdminStudent, Label: "Student"},
				{ID: SubAdminParent, Label: "Parent"},
				{ID: SubAdminMasterData, Label: "Master Data"},
				{ID: SubSettings, Label: "Settings"},
			},
		},
	}

	catalogIdx = make(map[string]int, len(catalog))
)

func init() {
	for i, m := range catalog {
		catalogIdx[m.ID] = i
	}
}

// Catalog returns a copy of the canonical, ordered module catalog.
func Catalog() []ModuleSpec {
	mods := make([]ModuleSpec, 0, len(catalog))
	for _, m := range catalog {
		subs := make([]SubSpec, len(m.Subs))
		copy(subs, m.Subs)
		if len(subs) == 0 {
			subs = nil
		}
		mods = append(mods, ModuleSpec{ID: m.ID, Label: m.Label, Subs: subs})
	}
	return mods
}

func lookup(id string) (ModuleSpec, bool) {
	i, ok := catalogIdx[id]
	if !ok {
		return ModuleSpec{}, false
	}
	return catalog[i], true
}
