package model

// Role is the account kind. Roles are fixed at creation.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// ParseRole maps s onto a known role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return r, true
	}
	return "", false
}

// User is an account record in the users collection.
type User struct {
	UID            string  `json:"uid"`
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	Role           Role    `json:"role"`
	TeacherID      *string `json:"teacherId"`
	RFIDTag        string  `json:"rfidTag"`
	IsActive       bool    `json:"isActive"`
	CreatedAt      int64   `json:"createdAt"`
	LastLoginTime  int64   `json:"lastLoginTime"`
	LoginCount     int     `json:"loginCount"`
	AttendanceRate float64 `json:"attendanceRate"`
}

// UserFromDocument decodes a stored user. It never fails: missing or
// mistyped fields fall back to their defaults, unknown roles become
// STUDENT and a teacherId on a non-student is dropped.
func UserFromDocument(doc Document) User {
	role, ok := ParseRole(doc.String("role", ""))
	if !ok {
		role = RoleStudent
	}
	u := User{
		UID:            doc.String("uid", ""),
		Email:          doc.String("email", ""),
		Name:           doc.String("name", ""),
		Role:           role,
		TeacherID:      doc.OptionalString("teacherId"),
		RFIDTag:        doc.String("rfidTag", ""),
		IsActive:       doc.Bool("isActive", true),
		CreatedAt:      doc.Int64("createdAt", 0),
		LastLoginTime:  doc.Int64("lastLoginTime", 0),
		LoginCount:     int(doc.Int64("loginCount", 0)),
		AttendanceRate: doc.Float64("attendanceRate", 0),
	}
	if u.Role != RoleStudent {
		u.TeacherID = nil
	}
	return u
}

// Document encodes u in its canonical stored shape.
func (u User) Document() Document {
	var teacherID any
	if u.TeacherID != nil {
		teacherID = *u.TeacherID
	}
	return Document{
		"uid":            u.UID,
		"email":          u.Email,
		"name":           u.Name,
		"role":           string(u.Role),
		"teacherId":      teacherID,
		"rfidTag":        u.RFIDTag,
		"isActive":       u.IsActive,
		"createdAt":      u.CreatedAt,
		"lastLoginTime":  u.LastLoginTime,
		"loginCount":     u.LoginCount,
		"attendanceRate": u.AttendanceRate,
	}
}

// TeacherOf returns the assigned teacher id, or "" when none.
func (u User) TeacherOf() string {
	if u.TeacherID == nil {
		return ""
	}
	return *u.TeacherID
}
