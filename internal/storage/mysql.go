package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("talent-match-go/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	// 为所有CRUD操作注册Before和After回调
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.SafeSQL(sqlStatement)),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement.RowsAffected > 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		} else {
			span.SetAttributes(attribute.Int64("db.rows_affected", 0))
		}

		// 记录错误（如果有），但正确处理ErrRecordNotFound
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.SetAttributes(attribute.String("error.message", db.Error.Error()))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// WithDisableErrSkip 设置是否禁用错误跳过
func (p *GormTracingPlugin) WithDisableErrSkip(disable bool) *GormTracingPlugin {
	p.disableErrSkip = disable
	return p
}

// Database 关系数据库接口
type Database interface {
	// DB 返回GORM数据库连接实例
	DB() *gorm.DB

	// Close 关闭数据库连接
	Close() error
}

// 确保MySQL实现了Database接口
var _ Database = (*MySQL)(nil)

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database).WithDisableErrSkip(true)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	// 使用 GORM 的 AutoMigrate 功能自动迁移表结构
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 迁移期间关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.Candidate{},
		&models.CandidateProfileRecord{},
		&models.Job{},
		&models.JobVector{},
		&models.JobChunkVector{},
		&models.MatchRun{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	log.Println("GORM数据库结构迁移成功")
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// EncodeVector 把向量序列化为存储用的字节串（JSON编码）
func EncodeVector(vector []float64) ([]byte, error) {
	return json.Marshal(vector)
}

// DecodeVector 从存储字节串还原向量
func DecodeVector(data []byte) ([]float64, error) {
	var vector []float64
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil, fmt.Errorf("解码向量失败: %w", err)
	}
	return vector, nil
}

// GetJobByID 通过 JobID 获取 Job 记录
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetRequirementProfile 加载岗位的结构化需求档案。
// 结构化需求缺失时退化为只含标题和描述的最小档案。
func (m *MySQL) GetRequirementProfile(ctx context.Context, jobID string) (*types.RequirementProfile, error) {
	job, err := m.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	profile := &types.RequirementProfile{
		JobID:       job.JobID,
		Title:       job.JobTitle,
		Description: job.JobDescriptionText,
	}
	if len(job.StructuredRequirementsJSON) > 0 {
		if err := json.Unmarshal(job.StructuredRequirementsJSON, profile); err != nil {
			return nil, fmt.Errorf("解析岗位结构化需求失败: %w", err)
		}
		// 结构化JSON可能不含ID和标题，统一以主表为准
		profile.JobID = job.JobID
		if profile.Title == "" {
			profile.Title = job.JobTitle
		}
		if profile.Description == "" {
			profile.Description = job.JobDescriptionText
		}
	}
	return profile, nil
}

// GetJobVector 获取岗位的整体向量，记录不存在时返回 gorm.ErrRecordNotFound
func (m *MySQL) GetJobVector(ctx context.Context, jobID string) ([]float64, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.GetJobVector", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	var record models.JobVector
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return DecodeVector(record.VectorRepresentation)
}

// GetJobChunkVectors 获取岗位描述的全部子向量，按块序号排序
func (m *MySQL) GetJobChunkVectors(ctx context.Context, jobID string) ([][]float64, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.GetJobChunkVectors", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	var records []models.JobChunkVector
	if err := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("chunk_id_in_job ASC").
		Find(&records).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	vectors := make([][]float64, 0, len(records))
	for _, r := range records {
		v, err := DecodeVector(r.VectorRepresentation)
		if err != nil {
			return nil, fmt.Errorf("岗位 %s 第 %d 块向量损坏: %w", jobID, r.ChunkIDInJob, err)
		}
		vectors = append(vectors, v)
	}
	span.SetAttributes(attribute.Int("job.chunk_count", len(vectors)))
	return vectors, nil
}

// GetCandidateProfilesByIDs 批量加载候选人结构化档案。
// 返回按候选人ID索引的map；档案缺失的候选人不在map中，由调用方决定处理。
func (m *MySQL) GetCandidateProfilesByIDs(ctx context.Context, candidateIDs []string) (map[string]*types.CandidateProfile, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.GetCandidateProfilesByIDs", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(candidateIDs)))

	result := make(map[string]*types.CandidateProfile, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return result, nil
	}

	var records []models.CandidateProfileRecord
	if err := m.db.WithContext(ctx).
		Where("candidate_id IN ?", candidateIDs).
		Find(&records).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("批量查询候选人档案失败: %w", err)
	}

	for i := range records {
		record := &records[i]
		var profile types.CandidateProfile
		if err := json.Unmarshal(record.ProfileJSON, &profile); err != nil {
			// 单条档案损坏不阻断整批，留给调用方按缺失处理
			span.AddEvent("corrupt_profile", trace.WithAttributes(attribute.String("candidate.id", record.CandidateID)))
			continue
		}
		profile.CandidateID = record.CandidateID
		profile.RawTextPath = record.ParsedTextPathOSS
		result[record.CandidateID] = &profile
	}
	span.SetAttributes(attribute.Int("batch.loaded", len(result)))
	return result, nil
}

// CreateMatchRun 创建一条匹配运行记录
func (m *MySQL) CreateMatchRun(ctx context.Context, run *models.MatchRun) error {
	return m.db.WithContext(ctx).Create(run).Error
}

// UpdateMatchRunStatus 更新匹配运行的状态
func (m *MySQL) UpdateMatchRunStatus(ctx context.Context, runID string, status string) error {
	return m.db.WithContext(ctx).Model(&models.MatchRun{}).
		Where("run_id = ?", runID).
		Update("status", status).Error
}

// CompleteMatchRun 将匹配运行标记为终态并写入结果
func (m *MySQL) CompleteMatchRun(ctx context.Context, runID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Model(&models.MatchRun{}).
		Where("run_id = ?", runID).
		Updates(updates).Error
}

// GetMatchRun 查询一条匹配运行记录
func (m *MySQL) GetMatchRun(ctx context.Context, runID string) (*models.MatchRun, error) {
	var run models.MatchRun
	if err := m.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
