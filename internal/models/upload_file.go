package models

import "time"

// UploadFile is a row of the upload_files table owned by the car trading
// system. platemask only ever reads it.
type UploadFile struct {
	ID               int64      `gorm:"primaryKey;column:id"`
	CarCd            *int64     `gorm:"column:car_cd;index"`
	InspresultdataCd *string    `gorm:"column:inspresultdata_cd;size:32;index"`
	BranchNo         *int       `gorm:"column:branch_no"`
	SaveFileName     string     `gorm:"column:save_file_name;size:512"`
	UploadTimestamp  *time.Time `gorm:"column:upload_timestamp"`
	Created          time.Time  `gorm:"column:created;index"`
	Modified         *time.Time `gorm:"column:modified;index"`
	DeleteFlg        int        `gorm:"column:delete_flg;default:0"`
}

// TableName pins the legacy table name.
func (UploadFile) TableName() string { return "upload_files" }

// CarKey is the vehicle grouping key: the inspection result code when
// present, otherwise the numeric car code.
func (u UploadFile) CarKey() string {
	if u.InspresultdataCd != nil && *u.InspresultdataCd != "" {
		return *u.InspresultdataCd
	}
	if u.CarCd != nil {
		return formatInt(*u.CarCd)
	}
	return ""
}
