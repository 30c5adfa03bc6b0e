package locale

var catalog = map[Language]map[string]string{
	English: {
		"add_link":              "Add link",
		"avatar_url":            "Avatar URL",
		"background_color":      "Background color",
		"bio":                   "Bio",
		"dashboard":             "Dashboard",
		"delete":                "Delete",
		"description":           "Description",
		"display_name":          "Display name",
		"edit":                  "Edit",
		"edit_profile":          "Edit profile",
		"email":                 "Email",
		"error":                 "Something went wrong",
		"error_body":            "We could not load this page right now.",
		"get_started":           "Get started",
		"home":                  "Home",
		"link_count":            "%d links",
		"move_down":             "Down",
		"move_up":               "Up",
		"no_links":              "No links added yet",
		"not_found":             "Page not found",
		"not_found_body":        "There is no profile at this address.",
		"or_continue_with":      "Or continue with",
		"password":              "Password",
		"password_confirmation": "Confirm password",
		"retry":                 "Try again",
		"save":                  "Save",
		"sign_in":               "Sign in",
		"sign_out":              "Sign out",
		"sign_up":               "Sign up",
		"socials":               "Social profiles",
		"tagline":               "One link for everything you share.",
		"title":                 "Title",
		"toggle_language":       "عربي",
		"upload_avatar":         "Upload avatar",
		"url":                   "URL",
		"username":              "Username",
		"view_page":             "View my page",
	},
	Arabic: {
		"add_link":              "إضافة رابط",
		"avatar_url":            "رابط الصورة",
		"background_color":      "لون الخلفية",
		"bio":                   "نبذة",
		"dashboard":             "لوحة التحكم",
		"delete":                "حذف",
		"description":           "الوصف",
		"display_name":          "الاسم المعروض",
		"edit":                  "تعديل",
		"edit_profile":          "تعديل الملف الشخصي",
		"email":                 "البريد الإلكتروني",
		"error":                 "حدث خطأ ما",
		"error_body":            "تعذر تحميل هذه الصفحة الآن.",
		"get_started":           "ابدأ الآن",
		"home":                  "الرئيسية",
		"link_count":            "%d روابط",
		"move_down":             "أسفل",
		"move_up":               "أعلى",
		"no_links":              "لم تتم إضافة روابط بعد",
		"not_found":             "الصفحة غير موجودة",
		"not_found_body":        "لا يوجد ملف شخصي على هذا العنوان.",
		"or_continue_with":      "أو تابع باستخدام",
		"password":              "كلمة المرور",
		"password_confirmation": "تأكيد كلمة المرور",
		"retry":                 "حاول مرة أخرى",
		"save":                  "حفظ",
		"sign_in":               "تسجيل الدخول",
		"sign_out":              "تسجيل الخروج",
		"sign_up":               "إنشاء حساب",
		"socials":               "الحسابات الاجتماعية",
		"tagline":               "رابط واحد لكل ما تشاركه.",
		"title":                 "العنوان",
		"toggle_language":       "En",
		"upload_avatar":         "رفع صورة",
		"url":                   "الرابط",
		"username":              "اسم المستخدم",
		"view_page":             "عرض صفحتي",
	},
}
